package http

import (
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamestagal/leaplearn/registry/internal/domain/installer"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/monitoring"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Install accepts a multipart package archive upload. Form fields:
// "archive" (file, required), "provenance" (upstream|curated|custom,
// default curated), "tenant" (required for custom).
func (h *Handlers) Install(c *gin.Context) {
	timer := monitoring.NewTimer()
	requestID := uuid.NewString()

	file, _, err := c.Request.FormFile("archive")
	if err != nil {
		badRequest(c, fmt.Errorf("multipart field 'archive' is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, fmt.Errorf("failed to read archive upload: %v", err))
		return
	}

	provenance := types.Provenance(c.DefaultPostForm("provenance", string(types.ProvenanceCurated)))
	opts := installer.Options{
		Provenance: provenance,
		TenantID:   c.PostForm("tenant"),
	}

	result, err := h.installer.Install(c.Request.Context(), data, opts)
	if err != nil {
		h.metrics.RecordInstall(string(provenance), "error", timer.Elapsed())
		h.log.Warn("install rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		respondError(c, err)
		return
	}

	outcome := "installed"
	switch {
	case result.Unchanged:
		outcome = "unchanged"
	case result.Replaced:
		outcome = "replaced"
	}
	h.metrics.RecordInstall(string(provenance), outcome, timer.Elapsed())
	h.catalog.InvalidateAll()

	if count, err := h.store.Count(c.Request.Context()); err == nil {
		h.metrics.SetPackagesStored(count)
	}

	status := nethttp.StatusCreated
	if result.Unchanged {
		status = nethttp.StatusOK
	}
	c.JSON(status, gin.H{
		"request_id": requestID,
		"result":     result,
	})
}
