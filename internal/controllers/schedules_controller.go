package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/models"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
)

type SchedulesController struct {
	AuthController
	Schedules ScheduleService
}

func NewSchedulesController(schedules ScheduleService, apiKey string) *SchedulesController {
	return &SchedulesController{Schedules: schedules, AuthController: AuthController{APIKey: apiKey}}
}

func (c *SchedulesController) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.ScheduleRequest](w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	sched, err := c.Schedules.Configure(r.Context(), r.PathValue("id"), engine.ScheduleConfig{
		CronExpression: req.Cron,
		Timezone:       req.Timezone,
		Enabled:        req.Enabled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.NewScheduleResponse(sched))
}

func (c *SchedulesController) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := c.Schedules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.NewScheduleResponse(sched))
}
