package store

import (
	"encoding/json"
	"time"

	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// versionModel represents the database row for the package_versions
// table. Fields map directly to SQL columns with Unix timestamps for
// time values and JSON-encoded categories.
type versionModel struct {
	ID             int64
	Name           string
	Major          int
	Minor          int
	Patch          int
	Title          string
	Description    string
	Categories     string // JSON encoded
	Runnable       bool
	Provenance     string
	OwningTenantID *string // nullable
	ArchiveRef     string
	AssetRoot      string
	IconRef        string
	MinHostVersion string
	ContentHash    string
	CreatedAt      int64 // Unix timestamp
	UpdatedAt      int64 // Unix timestamp
}

const versionColumns = `id, name, major, minor, patch, title, description, categories,
	runnable, provenance, owning_tenant_id, archive_ref, asset_root, icon_ref,
	min_host_version, content_hash, created_at, updated_at`

// scanVersion scans a row into a versionModel.
func scanVersion(scanner interface{ Scan(...any) error }) (*versionModel, error) {
	var m versionModel
	err := scanner.Scan(
		&m.ID, &m.Name, &m.Major, &m.Minor, &m.Patch, &m.Title, &m.Description,
		&m.Categories, &m.Runnable, &m.Provenance, &m.OwningTenantID,
		&m.ArchiveRef, &m.AssetRoot, &m.IconRef, &m.MinHostVersion,
		&m.ContentHash, &m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// toDomain converts a database row to the shared domain type.
func (m *versionModel) toDomain() *types.PackageVersion {
	var categories []string
	if m.Categories != "" {
		// A corrupt categories blob only loses discovery metadata.
		_ = json.Unmarshal([]byte(m.Categories), &categories)
	}

	return &types.PackageVersion{
		ID: m.ID,
		VersionKey: types.VersionKey{
			Name:  m.Name,
			Major: m.Major,
			Minor: m.Minor,
			Patch: m.Patch,
		},
		Title:          m.Title,
		Description:    m.Description,
		Categories:     categories,
		Runnable:       m.Runnable,
		Provenance:     types.Provenance(m.Provenance),
		OwningTenantID: m.OwningTenantID,
		ArchiveRef:     m.ArchiveRef,
		AssetRoot:      m.AssetRoot,
		IconRef:        m.IconRef,
		MinHostVersion: m.MinHostVersion,
		ContentHash:    m.ContentHash,
		CreatedAt:      time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:      time.Unix(m.UpdatedAt, 0).UTC(),
	}
}

// encodeCategories renders categories for storage.
func encodeCategories(categories []string) string {
	if len(categories) == 0 {
		return "[]"
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return "[]"
	}
	return string(data)
}
