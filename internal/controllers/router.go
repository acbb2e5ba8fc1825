package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *WebhooksController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /hooks/{triggerId}", c.handleDeliver)
	mux.HandleFunc("POST /api/workflows/{id}/triggers", c.RequireAuth(c.handleCreateTrigger))
	mux.HandleFunc("GET /api/workflows/{id}/triggers", c.RequireAuth(c.handleListTriggers))
	mux.HandleFunc("DELETE /api/triggers/{triggerId}", c.RequireAuth(c.handleRevokeTrigger))
}
func (c *SchedulesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/workflows/{id}/schedule", c.RequireAuth(c.handlePutSchedule))
	mux.HandleFunc("GET /api/workflows/{id}/schedule", c.RequireAuth(c.handleGetSchedule))
}
func (c *VersionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows/{id}/versions", c.RequireAuth(c.handleSaveVersion))
	mux.HandleFunc("GET /api/workflows/{id}/versions", c.RequireAuth(c.handleListVersions))
	mux.HandleFunc("GET /api/workflows/{id}/versions/{version}", c.RequireAuth(c.handleGetVersion))
}
func (c *ExecutionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows/{id}/run", c.RequireAuth(c.handleRun))
	mux.HandleFunc("GET /api/workflows/{id}/executions", c.RequireAuth(c.handleListExecutions))
	mux.HandleFunc("GET /api/executions/{id}", c.RequireAuth(c.handleGetExecution))
	mux.HandleFunc("POST /api/executions/{id}/start", c.RequireAuth(c.handleStart))
	mux.HandleFunc("POST /api/executions/{id}/steps", c.RequireAuth(c.handleRecordStep))
	mux.HandleFunc("POST /api/executions/{id}/finish", c.RequireAuth(c.handleFinish))
}
func (c *ExecutorsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executors", c.RequireAuth(c.handleGetExecutors))
}
