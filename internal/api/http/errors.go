package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
)

// respondError maps the registry error taxonomy to HTTP statuses. The
// body always carries the specific reason, never a generic "failed".
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch {
	case errors.Is(err, errs.ErrInvalidPackage):
		status, kind = http.StatusBadRequest, "invalid_package"
	case errors.Is(err, errs.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrConflictingReplacement):
		status, kind = http.StatusConflict, "conflicting_replacement"
	case errors.Is(err, errs.ErrReferencedVersionDeletion):
		status, kind = http.StatusConflict, "referenced_version"
	case errors.Is(err, errs.ErrSyncInProgress):
		status, kind = http.StatusConflict, "sync_in_progress"
	case errors.Is(err, errs.ErrDependencyCycleSuspected):
		status, kind = http.StatusUnprocessableEntity, "dependency_cycle_suspected"
	case errors.Is(err, errs.ErrUpstreamFetchFailed):
		status, kind = http.StatusBadGateway, "upstream_fetch_failed"
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// badRequest reports a malformed request that never reached the domain.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "bad_request"})
}
