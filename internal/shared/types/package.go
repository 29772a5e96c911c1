package types

import (
	"fmt"
	"strings"
	"time"
)

// Provenance identifies which catalog a package version came from.
type Provenance string

const (
	ProvenanceUpstream Provenance = "upstream" // mirrored from the hub
	ProvenanceCurated  Provenance = "curated"  // second-tier, curator-managed
	ProvenanceCustom   Provenance = "custom"   // tenant-uploaded
)

// Valid reports whether p is one of the known provenances.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceUpstream, ProvenanceCurated, ProvenanceCustom:
		return true
	}
	return false
}

// EdgeType classifies a dependency edge.
type EdgeType string

const (
	EdgeRequiredAtLoad   EdgeType = "required-at-load"
	EdgeRequiredAtRun    EdgeType = "required-at-runtime"
	EdgeRequiredInEditor EdgeType = "required-in-editor"
)

// AllEdgeTypes lists every known edge type.
func AllEdgeTypes() []EdgeType {
	return []EdgeType{EdgeRequiredAtLoad, EdgeRequiredAtRun, EdgeRequiredInEditor}
}

// Valid reports whether t is one of the known edge types.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeRequiredAtLoad, EdgeRequiredAtRun, EdgeRequiredInEditor:
		return true
	}
	return false
}

// ParseEdgeTypes parses a comma-separated edge type list.
// An empty input means every edge type.
func ParseEdgeTypes(csv string) ([]EdgeType, error) {
	if strings.TrimSpace(csv) == "" {
		return AllEdgeTypes(), nil
	}
	var out []EdgeType
	for _, raw := range strings.Split(csv, ",") {
		t := EdgeType(strings.TrimSpace(raw))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown edge type %q", raw)
		}
		out = append(out, t)
	}
	return out, nil
}

// VersionKey is the immutable identity of a package version.
type VersionKey struct {
	Name  string `json:"name"`
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
}

// Version renders the semantic version triple.
func (k VersionKey) Version() string {
	return fmt.Sprintf("%d.%d.%d", k.Major, k.Minor, k.Patch)
}

// String renders "Name@M.m.p", the canonical display form.
func (k VersionKey) String() string {
	return k.Name + "@" + k.Version()
}

// PackageVersion is one durable row in the package store. The identity
// tuple (Name, Major, Minor, Patch) never changes once created; discovery
// metadata may be refreshed on a same-identity re-install.
type PackageVersion struct {
	ID int64 `json:"id"`
	VersionKey
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Categories     []string   `json:"categories"`
	Runnable       bool       `json:"runnable"`
	Provenance     Provenance `json:"provenance"`
	OwningTenantID *string    `json:"owning_tenant_id,omitempty"`
	ArchiveRef     string     `json:"archive_ref"`
	AssetRoot      string     `json:"asset_root"`
	IconRef        string     `json:"icon_ref,omitempty"`
	MinHostVersion string     `json:"min_host_version,omitempty"`
	ContentHash    string     `json:"content_hash"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DependencyEdge is a typed directed edge between two stored versions.
type DependencyEdge struct {
	FromID int64    `json:"from_id"`
	ToID   int64    `json:"to_id"`
	Type   EdgeType `json:"edge_type"`
}

// TenantOverlay layers per-tenant enablement over the shared catalog.
// A missing row means default visibility for the version's provenance.
type TenantOverlay struct {
	TenantID   string    `json:"tenant_id"`
	VersionID  int64     `json:"version_id"`
	Enabled    bool      `json:"enabled"`
	Restricted bool      `json:"restricted"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MirrorCursor records the last completed listing fetch for a mirror
// source. Only the sync job reads or writes it.
type MirrorCursor struct {
	Source    string     `json:"source"`
	Digest    string     `json:"digest"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// CatalogEntry is one row of a tenant's merged catalog.
type CatalogEntry struct {
	VersionID int64 `json:"version_id"`
	VersionKey
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Categories      []string   `json:"categories"`
	IconRef         string     `json:"icon_ref,omitempty"`
	Provenance      Provenance `json:"provenance"`
	Restricted      bool       `json:"restricted"`
	UpdateAvailable bool       `json:"update_available"`
	LatestVersion   string     `json:"latest_version"`
}

// ResolvedPackage is one entry of a load-ready asset list, in load order.
type ResolvedPackage struct {
	VersionID int64 `json:"version_id"`
	VersionKey
	AssetRoot  string `json:"asset_root"`
	ArchiveRef string `json:"archive_ref"`
}

// InstallResult reports the outcome of a single install.
type InstallResult struct {
	VersionID int64      `json:"version_id"`
	Key       VersionKey `json:"key"`
	// Unchanged is true for the idempotent no-op path: the identity
	// already existed with an identical content hash.
	Unchanged bool `json:"unchanged"`
	// Replaced is true when an existing identity was overwritten with
	// different content.
	Replaced bool `json:"replaced"`
}

// SyncReport summarizes one mirror sync run.
type SyncReport struct {
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Skipped  bool              `json:"skipped"`
	Added    []string          `json:"added"`
	Updated  []string          `json:"updated"`
	Failed   map[string]string `json:"failed"`
}
