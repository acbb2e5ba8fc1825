package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
)

type ExecutorsController struct {
	AuthController
	ExecutorsRepo engine.ExecutorRepo
}

func NewExecutorsController(executorsRepo engine.ExecutorRepo, apiKey string) *ExecutorsController {
	return &ExecutorsController{
		ExecutorsRepo:  executorsRepo,
		AuthController: AuthController{APIKey: apiKey},
	}
}

// handleGetExecutors lists the most recently active scheduler processes.
func (c *ExecutorsController) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	slog.DebugContext(r.Context(), "GetExecutors called")

	results, err := c.ExecutorsRepo.GetExecutorsByLastActive(r.Context(), 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*domain.Executor{}
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
