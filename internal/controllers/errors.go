package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/flowtrigger/internal/cronexpr"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/models"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
	"github.com/RealZimboGuy/flowtrigger/internal/webhook"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{cronexpr.ErrInvalidExpression, http.StatusBadRequest},
	{cronexpr.ErrInvalidTimezone, http.StatusBadRequest},
	{engine.ErrInvalidDefinition, http.StatusBadRequest},
	{engine.ErrInvalidStepRequest, http.StatusBadRequest},
	{webhook.ErrInvalidPayload, http.StatusBadRequest},
	{webhook.ErrTriggerNotFound, http.StatusNotFound},
	{engine.ErrVersionNotFound, http.StatusNotFound},
	{engine.ErrExecutionNotFound, http.StatusNotFound},
	{repository.ErrNotFound, http.StatusNotFound},
	{webhook.ErrInvalidSignature, http.StatusUnauthorized},
	{webhook.ErrRateLimited, http.StatusTooManyRequests},
	{engine.ErrQueueUnavailable, http.StatusServiceUnavailable},
	{engine.ErrInvalidTransition, http.StatusConflict},
	{engine.ErrExecutionNotRunning, http.StatusConflict},
}

// statusFor maps a domain error onto its HTTP status, 500 when unknown.
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status >= 500:
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	case status == http.StatusConflict:
		// duplicate or late callbacks from retried workers
		slog.InfoContext(r.Context(), "Rejected callback", "method", r.Method, "path", r.URL.Path, "error", err)
	default:
		slog.DebugContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeErrorMessage(w, status, msg)
}

// writeBodyError answers a request whose body could not be read or decoded.
func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, util.ErrBodyTooLarge) {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeErrorMessage(w, http.StatusBadRequest, err.Error())
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	util.WriteJSONResponse(w, status, models.ErrorResponse{Error: msg})
}
