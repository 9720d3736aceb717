package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/models"
)

// entityShapes lists the entities whose shape can be queried, by URL name.
var entityShapes = map[string]patch.Shape{
	"datacenter":    patch.Describe(patch.Partial[models.Datacenter]{}),
	"workspace":     patch.Describe(patch.Partial[models.Workspace]{}),
	"network":       patch.Describe(patch.Partial[models.VirtualNetwork]{}),
	"device-config": patch.Describe(patch.Partial[models.DeviceConfig]{}),
}

// Schema handles GET /api/v1/schema/:entity.
//
// It reports every field of the entity, including read-only ones, so clients
// can build partial updates without hard-coding the model.
func Schema(c *gin.Context) {
	shape, ok := entityShapes[c.Param("entity")]
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "Unknown entity")
		return
	}

	respondSuccess(c, http.StatusOK, shape)
}
