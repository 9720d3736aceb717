package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/models"
)

// ReconcileRunner runs and remembers reconciliation passes.
type ReconcileRunner interface {
	Trigger(ctx context.Context, datacenterID string) (*models.ReconcileResult, error)
	Last(datacenterID string) (*models.ReconcileResult, bool)
}

// DatacenterGetter loads a datacenter.
type DatacenterGetter interface {
	Get(ctx context.Context, id string) (*models.Datacenter, error)
}

// ReconcileHandler handles on-demand reconciliation endpoints.
type ReconcileHandler struct {
	runner      ReconcileRunner
	datacenters DatacenterGetter
}

// NewReconcileHandler creates a new ReconcileHandler.
//
// Parameters:
//   - runner: Reconcile manager, which serializes passes per datacenter
//   - datacenters: Used to tell unknown datacenters from ones never reconciled
func NewReconcileHandler(runner ReconcileRunner, datacenters DatacenterGetter) *ReconcileHandler {
	return &ReconcileHandler{runner: runner, datacenters: datacenters}
}

// Trigger handles POST /api/v1/datacenters/:id/reconcile.
//
// The pass runs synchronously. If a scheduled pass for the datacenter is in
// flight the request waits for it, bounded by the request context. A pass
// that ends Degraded is still a 200: the result describes the failure.
//
// Returns:
//   - 200 OK with the pass result
//   - 404 Not Found if the datacenter does not exist
//   - 409 Conflict if the request gave up waiting for a running pass
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	result, err := h.runner.Trigger(c.Request.Context(), id)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result)
}

// Last handles GET /api/v1/datacenters/:id/reconcile and returns the most
// recent pass result.
func (h *ReconcileHandler) Last(c *gin.Context) {
	id, ok := pathID(c, "id", models.ErrDatacenterNotFound)
	if !ok {
		return
	}

	if _, err := h.datacenters.Get(c.Request.Context(), id); err != nil {
		mapErrorToResponse(c, err)
		return
	}

	result, ok := h.runner.Last(id)
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "No reconciliation pass has run for this datacenter")
		return
	}

	respondSuccess(c, http.StatusOK, result)
}
