package controllers

import (
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/flowtrigger/internal/models"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
)

type VersionsController struct {
	AuthController
	Versions VersionService
}

func NewVersionsController(versions VersionService, apiKey string) *VersionsController {
	return &VersionsController{Versions: versions, AuthController: AuthController{APIKey: apiKey}}
}

// handleSaveVersion takes the raw definition document as the body.
func (c *VersionsController) handleSaveVersion(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	body, err := util.ReadBody(w, r, util.MaxJSONBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	version, err := c.Versions.SaveVersion(r.Context(), workflowID, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := c.Versions.GetVersion(r.Context(), workflowID, version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, models.NewVersionResponse(saved))
}

func (c *VersionsController) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || n < 1 {
		writeErrorMessage(w, http.StatusBadRequest, "version is a positive integer")
		return
	}
	v, err := c.Versions.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.NewVersionResponse(v))
}

func (c *VersionsController) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := c.Versions.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]models.VersionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, models.NewVersionResponse(v))
	}
	util.WriteJSONResponse(w, http.StatusOK, resp)
}
