package controllers

import (
	"net/http"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/models"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	DeliveryHeader  = "X-Webhook-Delivery"
)

// WebhooksController serves the public webhook intake and the trigger admin endpoints.
type WebhooksController struct {
	AuthController
	Triggers     TriggerService
	MaxBodyBytes int64
}

func NewWebhooksController(triggers TriggerService, maxBodyBytes int64, apiKey string) *WebhooksController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhooksController{Triggers: triggers, MaxBodyBytes: maxBodyBytes, AuthController: AuthController{APIKey: apiKey}}
}

// handleDeliver is not behind the API key, the signature authenticates the caller.
func (c *WebhooksController) handleDeliver(w http.ResponseWriter, r *http.Request) {
	triggerID := r.PathValue("triggerId")
	body, err := util.ReadBody(w, r, c.MaxBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	exec, err := c.Triggers.Deliver(r.Context(), triggerID, body, r.Header.Get(SignatureHeader), r.Header.Get(DeliveryHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusAccepted, models.NewExecutionResponse(exec))
}

func (c *WebhooksController) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	req := models.CreateTriggerRequest{}
	if r.ContentLength != 0 {
		var err error
		req, err = util.DecodeJSONBody[models.CreateTriggerRequest](w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}
	}
	var window time.Duration
	if req.RateLimitWindow != "" {
		var err error
		window, err = time.ParseDuration(req.RateLimitWindow)
		if err != nil || window < 0 {
			writeErrorMessage(w, http.StatusBadRequest, "rateLimitWindow must be a duration such as 1m")
			return
		}
	}
	if req.RateLimitQuota < 0 {
		writeErrorMessage(w, http.StatusBadRequest, "rateLimitQuota must not be negative")
		return
	}

	trigger, err := c.Triggers.CreateTrigger(r.Context(), workflowID, req.RateLimitQuota, window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, models.NewTriggerResponse(trigger, true))
}

func (c *WebhooksController) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := c.Triggers.ListTriggers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]models.TriggerResponse, 0, len(triggers))
	for _, t := range triggers {
		resp = append(resp, models.NewTriggerResponse(t, false))
	}
	util.WriteJSONResponse(w, http.StatusOK, resp)
}

func (c *WebhooksController) handleRevokeTrigger(w http.ResponseWriter, r *http.Request) {
	if err := c.Triggers.Revoke(r.Context(), r.PathValue("triggerId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
