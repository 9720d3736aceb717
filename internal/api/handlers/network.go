package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/service"
	"github.com/yaroslav/microdc/models"
)

// NetworkHandler handles virtual network management endpoints.
type NetworkHandler struct {
	service *service.NetworkService
}

// NewNetworkHandler creates a new NetworkHandler.
func NewNetworkHandler(service *service.NetworkService) *NetworkHandler {
	return &NetworkHandler{service: service}
}

// Create handles POST /api/v1/workspaces/:id/networks.
// A network created without a tag is tagged by the next reconciliation pass.
func (h *NetworkHandler) Create(c *gin.Context) {
	workspaceID, ok := pathID(c, "id", models.ErrWorkspaceNotFound)
	if !ok {
		return
	}

	var req models.VirtualNetworkCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	n, err := h.service.Create(c.Request.Context(), workspaceID, &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, n)
}

// List handles GET /api/v1/workspaces/:id/networks.
func (h *NetworkHandler) List(c *gin.Context) {
	workspaceID, ok := pathID(c, "id", models.ErrWorkspaceNotFound)
	if !ok {
		return
	}

	resp, err := h.service.List(c.Request.Context(), workspaceID)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, resp)
}

// Get handles GET /api/v1/networks/:id.
func (h *NetworkHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrNetworkNotFound)
	if !ok {
		return
	}

	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, n)
}

// Update handles PATCH /api/v1/networks/:id.
func (h *NetworkHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrNetworkNotFound)
	if !ok {
		return
	}

	var partial patch.Partial[models.VirtualNetwork]
	if !bindJSON(c, &partial) {
		return
	}

	n, err := h.service.Update(c.Request.Context(), id, partial)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, n)
}

// Delete handles DELETE /api/v1/networks/:id and returns the deleted network.
func (h *NetworkHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrNetworkNotFound)
	if !ok {
		return
	}

	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, n)
}
