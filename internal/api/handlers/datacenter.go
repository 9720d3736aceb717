package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/service"
	"github.com/yaroslav/microdc/models"
)

// ResultForgetter drops per-datacenter reconciliation state.
type ResultForgetter interface {
	Forget(datacenterID string)
}

// DatacenterHandler handles datacenter management endpoints.
type DatacenterHandler struct {
	service *service.DatacenterService
	results ResultForgetter
}

// NewDatacenterHandler creates a new DatacenterHandler.
//
// Parameters:
//   - service: Datacenter service
//   - results: Reconciliation results to drop when a datacenter is deleted (may be nil)
func NewDatacenterHandler(service *service.DatacenterService, results ResultForgetter) *DatacenterHandler {
	return &DatacenterHandler{service: service, results: results}
}

// Create handles POST /api/v1/datacenters.
func (h *DatacenterHandler) Create(c *gin.Context) {
	var req models.DatacenterCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	dc, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, dc)
}

// List handles GET /api/v1/datacenters.
func (h *DatacenterHandler) List(c *gin.Context) {
	resp, err := h.service.List(c.Request.Context())
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, resp)
}

// Get handles GET /api/v1/datacenters/:id.
func (h *DatacenterHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	dc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, dc)
}

// Update handles PATCH /api/v1/datacenters/:id.
func (h *DatacenterHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	var partial patch.Partial[models.Datacenter]
	if !bindJSON(c, &partial) {
		return
	}

	dc, err := h.service.Update(c.Request.Context(), id, partial)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, dc)
}

// Delete handles DELETE /api/v1/datacenters/:id.
//
// The datacenter, its workspaces, networks and device templates are removed
// from the store. VLANs already configured on the cluster are left in place.
// Returns the deleted datacenter.
func (h *DatacenterHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	dc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		mapErrorToResponse(c, err)
		return
	}
	if h.results != nil {
		h.results.Forget(id)
	}

	respondSuccess(c, http.StatusOK, dc)
}
