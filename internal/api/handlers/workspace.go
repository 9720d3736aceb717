package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/service"
	"github.com/yaroslav/microdc/models"
)

// WorkspaceHandler handles workspace management endpoints.
type WorkspaceHandler struct {
	service *service.WorkspaceService
}

// NewWorkspaceHandler creates a new WorkspaceHandler.
func NewWorkspaceHandler(service *service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{service: service}
}

// Create handles POST /api/v1/datacenters/:id/workspaces.
// The address is allocated from the datacenter pool unless one is requested.
func (h *WorkspaceHandler) Create(c *gin.Context) {
	datacenterID, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	var req models.WorkspaceCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	ws, err := h.service.Create(c.Request.Context(), datacenterID, &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, ws)
}

// List handles GET /api/v1/datacenters/:id/workspaces.
func (h *WorkspaceHandler) List(c *gin.Context) {
	datacenterID, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	resp, err := h.service.List(c.Request.Context(), datacenterID)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, resp)
}

// Get handles GET /api/v1/workspaces/:id.
func (h *WorkspaceHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrWorkspaceNotFound)
	if !ok {
		return
	}

	ws, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, ws)
}

// Update handles PATCH /api/v1/workspaces/:id.
func (h *WorkspaceHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrWorkspaceNotFound)
	if !ok {
		return
	}

	var partial patch.Partial[models.Workspace]
	if !bindJSON(c, &partial) {
		return
	}

	ws, err := h.service.Update(c.Request.Context(), id, partial)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, ws)
}

// Delete handles DELETE /api/v1/workspaces/:id[?force=true].
//
// Without force the workspace moves to "deleting" and is purged by the
// reconciler once its VLANs are gone from the cluster; the response is 202.
// With force it is purged immediately and the response is 200.
func (h *WorkspaceHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrWorkspaceNotFound)
	if !ok {
		return
	}

	force, err := strconv.ParseBool(c.DefaultQuery("force", "false"))
	if err != nil {
		mapErrorToResponse(c, fmt.Errorf("%w: force must be a boolean", models.ErrValidationFailed))
		return
	}

	ws, err := h.service.Delete(c.Request.Context(), id, force)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	status := http.StatusAccepted
	if force {
		status = http.StatusOK
	}
	respondSuccess(c, status, ws)
}
