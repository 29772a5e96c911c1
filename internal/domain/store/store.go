// Package store is the durable package registry: package versions,
// dependency edges, tenant overlays, and mirror cursors. All writes by
// the installer happen inside a single transaction obtained from InTx,
// so readers never observe a partial install.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/internal/shared/semver"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// UsageChecker reports whether authored content still references a
// version. Supplied by the content collaborator; the registry itself
// only tracks dependency edges.
type UsageChecker interface {
	InUse(ctx context.Context, versionID int64) (bool, error)
}

// Store provides access to the registry tables.
type Store struct {
	db    *sql.DB
	usage UsageChecker
}

// New creates a store over an opened registry database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithUsageChecker wires the external content-usage collaborator,
// consulted before a version delete.
func (s *Store) WithUsageChecker(u UsageChecker) *Store {
	s.usage = u
	return s
}

// Tx wraps one registry transaction.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertVersion inserts or updates a package version by its identity
// tuple and returns the row id. Identity fields never change; discovery
// metadata, blob refs, content hash, and updated_at are refreshed.
func (t *Tx) UpsertVersion(ctx context.Context, v *types.PackageVersion) (int64, error) {
	now := time.Now().UTC()
	created := v.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO package_versions (
			name, major, minor, patch, title, description, categories,
			runnable, provenance, owning_tenant_id, archive_ref, asset_root,
			icon_ref, min_host_version, content_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, major, minor, patch) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			categories = excluded.categories,
			runnable = excluded.runnable,
			provenance = excluded.provenance,
			owning_tenant_id = excluded.owning_tenant_id,
			archive_ref = excluded.archive_ref,
			asset_root = excluded.asset_root,
			icon_ref = excluded.icon_ref,
			min_host_version = excluded.min_host_version,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		v.Name, v.Major, v.Minor, v.Patch, v.Title, v.Description,
		encodeCategories(v.Categories), v.Runnable, string(v.Provenance),
		v.OwningTenantID, v.ArchiveRef, v.AssetRoot, v.IconRef,
		v.MinHostVersion, v.ContentHash, created.Unix(), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert package version %s: %w", v.VersionKey, err)
	}

	var id int64
	err = t.tx.QueryRowContext(ctx,
		`SELECT id FROM package_versions WHERE name = ? AND major = ? AND minor = ? AND patch = ?`,
		v.Name, v.Major, v.Minor, v.Patch,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back version id for %s: %w", v.VersionKey, err)
	}
	return id, nil
}

// TouchVersion refreshes updated_at only. Used for the idempotent
// re-install path where content is byte-identical.
func (t *Tx) TouchVersion(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE package_versions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch version %d: %w", id, err)
	}
	return nil
}

// ReplaceEdges deletes every outgoing edge of fromID and inserts the
// given set. Wholesale replacement avoids stale edges on re-install.
func (t *Tx) ReplaceEdges(ctx context.Context, fromID int64, edges []types.DependencyEdge) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM dependency_edges WHERE from_id = ?`, fromID,
	); err != nil {
		return fmt.Errorf("failed to clear edges for version %d: %w", fromID, err)
	}

	for _, e := range edges {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO dependency_edges (from_id, to_id, edge_type) VALUES (?, ?, ?)`,
			fromID, e.ToID, string(e.Type),
		); err != nil {
			return fmt.Errorf("failed to insert edge %d->%d: %w", fromID, e.ToID, err)
		}
	}
	return nil
}

// EnsureOverlay creates an enabled overlay row for (tenant, version) if
// none exists. Existing overlay state is preserved.
func (t *Tx) EnsureOverlay(ctx context.Context, tenantID string, versionID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tenant_overlays (tenant_id, version_id, enabled, restricted, updated_at)
		 VALUES (?, ?, 1, 0, ?)
		 ON CONFLICT (tenant_id, version_id) DO NOTHING`,
		tenantID, versionID, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure overlay for tenant %s: %w", tenantID, err)
	}
	return nil
}

// GetByKeyTx reads a version by identity tuple inside the transaction.
func (t *Tx) GetByKeyTx(ctx context.Context, key types.VersionKey) (*types.PackageVersion, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM package_versions
		 WHERE name = ? AND major = ? AND minor = ? AND patch = ?`,
		key.Name, key.Major, key.Minor, key.Patch,
	)
	m, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package %s: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package %s: %w", key, err)
	}
	return m.toDomain(), nil
}

// GetByID reads one version by row id.
func (s *Store) GetByID(ctx context.Context, id int64) (*types.PackageVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM package_versions WHERE id = ?`, id,
	)
	m, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package version %d: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package version %d: %w", id, err)
	}
	return m.toDomain(), nil
}

// GetByKey reads one version by identity tuple.
func (s *Store) GetByKey(ctx context.Context, key types.VersionKey) (*types.PackageVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM package_versions
		 WHERE name = ? AND major = ? AND minor = ? AND patch = ?`,
		key.Name, key.Major, key.Minor, key.Patch,
	)
	m, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package %s: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package %s: %w", key, err)
	}
	return m.toDomain(), nil
}

// ListByName returns every stored version of name, newest first.
func (s *Store) ListByName(ctx context.Context, name string) ([]types.PackageVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM package_versions
		 WHERE name = ? ORDER BY major DESC, minor DESC, patch DESC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", name, err)
	}
	defer rows.Close()
	return collectVersions(rows)
}

// Latest returns the highest stored version of name whose minimum host
// runtime requirement is satisfied by hostVersion. An empty hostVersion
// skips the compatibility check.
func (s *Store) Latest(ctx context.Context, name, hostVersion string) (*types.PackageVersion, error) {
	versions, err := s.ListByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		v := &versions[i]
		if hostVersion == "" || semver.AtMost(v.MinHostVersion, hostVersion) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("package %s: %w", name, errs.ErrNotFound)
}

// ListRunnable returns runnable versions, optionally filtered by
// provenance. Custom packages are excluded: cross-tenant invisibility
// is built into the queries, not filtered after the fact.
func (s *Store) ListRunnable(ctx context.Context, provenance *types.Provenance) ([]types.PackageVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM package_versions
		 WHERE runnable = 1 AND provenance != 'custom'`
	args := []any{}
	if provenance != nil {
		query = `SELECT ` + versionColumns + ` FROM package_versions
		 WHERE runnable = 1 AND provenance = ?`
		args = append(args, string(*provenance))
	}
	query += ` ORDER BY name, major DESC, minor DESC, patch DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runnable versions: %w", err)
	}
	defer rows.Close()
	return collectVersions(rows)
}

// ListRunnableCustom returns the runnable custom versions owned by one
// tenant. The query never selects another tenant's custom rows.
func (s *Store) ListRunnableCustom(ctx context.Context, tenantID string) ([]types.PackageVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM package_versions
		 WHERE runnable = 1 AND provenance = 'custom' AND owning_tenant_id = ?
		 ORDER BY name, major DESC, minor DESC, patch DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom versions for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()
	return collectVersions(rows)
}

// ListAll returns every stored version, optionally filtered by
// provenance. Admin inventory, not tenant-scoped.
func (s *Store) ListAll(ctx context.Context, provenance *types.Provenance) ([]types.PackageVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM package_versions`
	args := []any{}
	if provenance != nil {
		query += ` WHERE provenance = ?`
		args = append(args, string(*provenance))
	}
	query += ` ORDER BY name, major DESC, minor DESC, patch DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list package versions: %w", err)
	}
	defer rows.Close()
	return collectVersions(rows)
}

// Count reports the number of stored package versions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM package_versions`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count package versions: %w", err)
	}
	return n, nil
}

// Referenced reports whether any dependency edge points at id.
func (s *Store) Referenced(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dependency_edges WHERE to_id = ?`, id,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check references of version %d: %w", id, err)
	}
	return n > 0, nil
}

// DeleteVersion removes a version and its outgoing edges. The delete is
// rejected while inbound edges exist or authored content still uses the
// version.
func (s *Store) DeleteVersion(ctx context.Context, id int64) error {
	referenced, err := s.Referenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("version %d: %w", id, errs.ErrReferencedVersionDeletion)
	}

	if s.usage != nil {
		inUse, err := s.usage.InUse(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check content usage of version %d: %w", id, err)
		}
		if inUse {
			return fmt.Errorf("version %d: %w", id, errs.ErrReferencedVersionDeletion)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM package_versions WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete version %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("package version %d: %w", id, errs.ErrNotFound)
	}
	return nil
}

func collectVersions(rows *sql.Rows) ([]types.PackageVersion, error) {
	var out []types.PackageVersion
	for rows.Next() {
		m, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package version: %w", err)
		}
		out = append(out, *m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate package versions: %w", err)
	}
	return out, nil
}
