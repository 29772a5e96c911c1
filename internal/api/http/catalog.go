package http

import (
	"fmt"
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/monitoring"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Catalog serves the tenant's merged catalog.
func (h *Handlers) Catalog(c *gin.Context) {
	tenant := c.Query("tenant")
	if tenant == "" {
		badRequest(c, fmt.Errorf("tenant query parameter is required"))
		return
	}

	entries, err := h.catalog.Catalog(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{
		"tenant":  tenant,
		"entries": entries,
		"count":   len(entries),
	})
}

// Resolve serves the ordered asset-load list for one package version,
// addressed either by version id or by name (newest host-compatible).
func (h *Handlers) Resolve(c *gin.Context) {
	timer := monitoring.NewTimer()

	var versionID int64
	switch {
	case c.Query("version") != "":
		id, err := strconv.ParseInt(c.Query("version"), 10, 64)
		if err != nil {
			badRequest(c, fmt.Errorf("version query parameter must be a version id"))
			return
		}
		// The root must exist; resolving an unknown id is a 404, not
		// an empty list.
		version, err := h.store.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		versionID = version.ID
	case c.Query("package") != "":
		version, err := h.store.Latest(c.Request.Context(), c.Query("package"), h.catalog.HostVersion())
		if err != nil {
			respondError(c, err)
			return
		}
		versionID = version.ID
	default:
		badRequest(c, fmt.Errorf("either 'version' or 'package' query parameter is required"))
		return
	}

	kinds := types.AllEdgeTypes()
	if csv := c.Query("edge_types"); csv != "" {
		parsed, err := types.ParseEdgeTypes(csv)
		if err != nil {
			badRequest(c, err)
			return
		}
		kinds = parsed
	}

	resolved, err := h.resolver.Resolve(c.Request.Context(), []int64{versionID}, kinds)
	if err != nil {
		h.metrics.RecordResolve("error", timer.Elapsed())
		respondError(c, err)
		return
	}
	h.metrics.RecordResolve("ok", timer.Elapsed())

	c.JSON(nethttp.StatusOK, gin.H{
		"version_id": versionID,
		"packages":   resolved,
		"count":      len(resolved),
	})
}
