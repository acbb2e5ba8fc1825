package controllers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/models"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
)

const IdempotencyHeader = "Idempotency-Key"

// ExecutionsController serves execution reads, manual runs and the worker callbacks used
// by workers running outside this process.
type ExecutionsController struct {
	AuthController
	Tracker    ExecutionTracker
	Dispatcher engine.RunDispatcher
}

func NewExecutionsController(tracker ExecutionTracker, dispatcher engine.RunDispatcher, apiKey string) *ExecutionsController {
	return &ExecutionsController{Tracker: tracker, Dispatcher: dispatcher, AuthController: AuthController{APIKey: apiKey}}
}

func (c *ExecutionsController) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := c.Tracker.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.NewExecutionResponse(exec))
}

func (c *ExecutionsController) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	execs, err := c.Tracker.ListByWorkflow(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]models.ExecutionResponse, 0, len(execs))
	for _, e := range execs {
		resp = append(resp, models.NewExecutionResponse(e))
	}
	util.WriteJSONResponse(w, http.StatusOK, resp)
}

// handleRun dispatches a manual run. Requests repeating an Idempotency-Key get the same
// execution back.
func (c *ExecutionsController) handleRun(w http.ResponseWriter, r *http.Request) {
	req := models.RunRequest{}
	if r.ContentLength != 0 {
		var err error
		req, err = util.DecodeJSONBody[models.RunRequest](w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}
	}
	exec, err := c.Dispatcher.Dispatch(r.Context(), domain.DispatchRequest{
		WorkflowID: r.PathValue("id"),
		Version:    req.Version,
		Source:     domain.TriggerManual,
		DeliveryID: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
		Payload:    req.Payload,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusAccepted, models.NewExecutionResponse(exec))
}

func (c *ExecutionsController) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := c.Tracker.Start(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	c.writeExecution(w, r, id)
}

func (c *ExecutionsController) handleRecordStep(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.StepRequest](w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	step := domain.ExecutionStep{
		Name:        req.Name,
		Status:      domain.StepStatus(req.Status),
		ErrorDetail: sql.NullString{String: req.ErrorDetail, Valid: req.ErrorDetail != ""},
	}
	if req.StartedAt != nil {
		step.StartedAt = *req.StartedAt
	}
	if req.FinishedAt != nil {
		step.FinishedAt = sql.NullTime{Time: *req.FinishedAt, Valid: true}
	}
	if err := c.Tracker.RecordStep(r.Context(), r.PathValue("id"), step); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *ExecutionsController) handleFinish(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.FinishRequest](w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	status := domain.ExecutionStatus(req.Status)
	if !status.IsTerminal() {
		writeErrorMessage(w, http.StatusBadRequest, "status must be one of succeeded, failed, cancelled")
		return
	}
	id := r.PathValue("id")
	if err := c.Tracker.Finish(r.Context(), id, status, req.ErrorDetail); err != nil {
		writeError(w, r, err)
		return
	}
	c.writeExecution(w, r, id)
}

func (c *ExecutionsController) writeExecution(w http.ResponseWriter, r *http.Request, id string) {
	exec, err := c.Tracker.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.NewExecutionResponse(exec))
}
