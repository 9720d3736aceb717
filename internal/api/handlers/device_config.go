package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/service"
	"github.com/yaroslav/microdc/models"
)

// DeviceConfigHandler handles device template endpoints.
type DeviceConfigHandler struct {
	service *service.DeviceConfigService
}

// NewDeviceConfigHandler creates a new DeviceConfigHandler.
func NewDeviceConfigHandler(service *service.DeviceConfigService) *DeviceConfigHandler {
	return &DeviceConfigHandler{service: service}
}

// Create handles POST /api/v1/datacenters/:id/device-configs.
func (h *DeviceConfigHandler) Create(c *gin.Context) {
	datacenterID, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	var req models.DeviceConfigCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	dc, err := h.service.Create(c.Request.Context(), datacenterID, &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, dc)
}

// List handles GET /api/v1/datacenters/:id/device-configs.
func (h *DeviceConfigHandler) List(c *gin.Context) {
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

// Get handles GET /api/v1/device-configs/:id.
func (h *DeviceConfigHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDeviceConfigNotFound)
	if !ok {
		return
	}

	cfg, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, cfg)
}

// Update handles PATCH /api/v1/device-configs/:id.
func (h *DeviceConfigHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDeviceConfigNotFound)
	if !ok {
		return
	}

	var partial patch.Partial[models.DeviceConfig]
	if !bindJSON(c, &partial) {
		return
	}

	cfg, err := h.service.Update(c.Request.Context(), id, partial)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, cfg)
}

// Delete handles DELETE /api/v1/device-configs/:id.
func (h *DeviceConfigHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDeviceConfigNotFound)
	if !ok {
		return
	}

	cfg, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, cfg)
}
