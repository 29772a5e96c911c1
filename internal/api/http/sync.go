package http

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/monitoring"
)

// TriggerSync runs one mirror pass out of band. A pass already in
// flight is reported as a conflict, not queued.
func (h *Handlers) TriggerSync(c *gin.Context) {
	timer := monitoring.NewTimer()

	report, err := h.syncer.Sync(c.Request.Context())
	if err != nil {
		h.metrics.RecordSyncRun("error", timer.Elapsed(), 0)
		respondError(c, err)
		return
	}

	status := "ok"
	if report.Skipped {
		status = "skipped"
	} else if len(report.Failed) > 0 {
		status = "partial"
	}
	h.metrics.RecordSyncRun(status, timer.Elapsed(), len(report.Failed))

	if !report.Skipped {
		h.catalog.InvalidateAll()
		if count, err := h.store.Count(c.Request.Context()); err == nil {
			h.metrics.SetPackagesStored(count)
		}
	}

	c.JSON(nethttp.StatusOK, gin.H{"report": report})
}

// Metrics serves the Prometheus exposition endpoint.
func (h *Handlers) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// MetricsJSON serves the metrics snapshot as JSON.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(nethttp.StatusOK, h.metrics.GetSnapshot())
}
