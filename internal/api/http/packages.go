package http

import (
	"fmt"
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// ListPackages serves the full stored inventory, optionally filtered by
// provenance. Admin discovery, not the tenant catalog.
func (h *Handlers) ListPackages(c *gin.Context) {
	var provenance *types.Provenance
	if raw := c.Query("provenance"); raw != "" {
		p := types.Provenance(raw)
		if !p.Valid() {
			badRequest(c, fmt.Errorf("unknown provenance %q", raw))
			return
		}
		provenance = &p
	}

	versions, err := h.store.ListAll(c.Request.Context(), provenance)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(nethttp.StatusOK, gin.H{
		"packages": versions,
		"count":    len(versions),
	})
}

// GetPackage serves one version with its outgoing dependency edges.
func (h *Handlers) GetPackage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("package id must be numeric"))
		return
	}

	version, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	edges, err := h.store.EdgesFrom(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(nethttp.StatusOK, gin.H{
		"package":      version,
		"dependencies": edges,
	})
}

// DeletePackage removes one version. Rejected while dependency edges or
// authored content still reference it.
func (h *Handlers) DeletePackage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("package id must be numeric"))
		return
	}

	if err := h.store.DeleteVersion(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.catalog.InvalidateAll()

	if count, err := h.store.Count(c.Request.Context()); err == nil {
		h.metrics.SetPackagesStored(count)
	}

	c.JSON(nethttp.StatusOK, gin.H{"deleted": id})
}

// SetOverlay writes one tenant's overlay row for a version.
func (h *Handlers) SetOverlay(c *gin.Context) {
	tenant := c.Param("tenant")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("package id must be numeric"))
		return
	}

	var body struct {
		Enabled    bool `json:"enabled"`
		Restricted bool `json:"restricted"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Errorf("malformed overlay body: %v", err))
		return
	}

	// Overlays only make sense against stored versions.
	if _, err := h.store.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	overlay := types.TenantOverlay{
		TenantID:   tenant,
		VersionID:  id,
		Enabled:    body.Enabled,
		Restricted: body.Restricted,
	}
	if err := h.store.SetOverlay(c.Request.Context(), overlay); err != nil {
		respondError(c, err)
		return
	}
	h.catalog.Invalidate(tenant)

	c.JSON(nethttp.StatusOK, gin.H{"overlay": overlay})
}
