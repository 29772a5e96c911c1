// Package http exposes the registry over REST: tenant catalog,
// dependency resolution, installs, overlays, mirror sync, and an
// upstream-protocol-compatible hub surface.
package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jamestagal/leaplearn/registry/internal/domain/catalog"
	"github.com/jamestagal/leaplearn/registry/internal/domain/graph"
	"github.com/jamestagal/leaplearn/registry/internal/domain/installer"
	"github.com/jamestagal/leaplearn/registry/internal/domain/mirror"
	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/blob"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/logging"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/monitoring"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	store     *store.Store
	resolver  *graph.Resolver
	installer *installer.Installer
	syncer    *mirror.Syncer
	catalog   *catalog.Service
	blobs     blob.Store
	metrics   *monitoring.Metrics
	log       *logging.Logger
	sites     *Sites

	mirrorSource string
	started      time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(
	st *store.Store,
	resolver *graph.Resolver,
	inst *installer.Installer,
	syncer *mirror.Syncer,
	cat *catalog.Service,
	blobs blob.Store,
	metrics *monitoring.Metrics,
	log *logging.Logger,
	mirrorSource string,
) *Handlers {
	return &Handlers{
		store:        st,
		resolver:     resolver,
		installer:    inst,
		syncer:       syncer,
		catalog:      cat,
		blobs:        blobs,
		metrics:      metrics,
		log:          log,
		sites:        NewSites(),
		mirrorSource: mirrorSource,
		started:      time.Now().UTC(),
	}
}

// Root handles the service identity check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(nethttp.StatusOK, gin.H{
		"status":  "online",
		"service": "LeapLearn Package Registry",
		"version": "1.0.0",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	packages, err := h.store.Count(ctx)
	status := "healthy"
	if err != nil {
		status = "degraded"
	}

	cursor, _ := h.store.Cursor(ctx, h.mirrorSource)

	c.JSON(nethttp.StatusOK, gin.H{
		"status":          status,
		"uptime_seconds":  int(time.Since(h.started).Seconds()),
		"packages_stored": packages,
		"host_version":    h.catalog.HostVersion(),
		"mirror": gin.H{
			"last_synced": cursor.SyncedAt,
			"last_error":  cursor.LastError,
		},
		"registered_sites": h.sites.Len(),
	})
}
