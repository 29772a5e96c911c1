// Package errs defines the registry's error taxonomy. Callers classify an
// error with errors.Is against these sentinels; the HTTP layer maps each
// kind to a status code so installation failures surface their specific
// reason rather than a generic failure.
package errs

import "errors"

var (
	// ErrInvalidPackage marks a malformed archive or manifest.
	// Permanent: the same bytes will never install.
	ErrInvalidPackage = errors.New("invalid package")

	// ErrNotFound marks a missing package version or catalog entry.
	ErrNotFound = errors.New("not found")

	// ErrDependencyCycleSuspected marks a resolution that hit the depth
	// cap. Resolution fails closed: no partial list is ever returned.
	ErrDependencyCycleSuspected = errors.New("dependency cycle suspected")

	// ErrConflictingReplacement marks an attempt to overwrite an
	// existing identity whose provenance is immutable (upstream).
	ErrConflictingReplacement = errors.New("conflicting replacement")

	// ErrUpstreamFetchFailed marks a transient upstream failure.
	// Retried by the next scheduled sync, never immediately.
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")

	// ErrReferencedVersionDeletion marks a delete of a version still
	// referenced by dependency edges or content.
	ErrReferencedVersionDeletion = errors.New("version still referenced")

	// ErrSyncInProgress marks a sync trigger that fired while a previous
	// run was still active. The new run is skipped, not queued.
	ErrSyncInProgress = errors.New("sync already in progress")
)
