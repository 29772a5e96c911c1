package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Overlays returns the tenant's overlay rows keyed by version id.
func (s *Store) Overlays(ctx context.Context, tenantID string) (map[int64]types.TenantOverlay, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, version_id, enabled, restricted, updated_at
		 FROM tenant_overlays WHERE tenant_id = ?`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overlays for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	out := make(map[int64]types.TenantOverlay)
	for rows.Next() {
		var o types.TenantOverlay
		var updated int64
		if err := rows.Scan(&o.TenantID, &o.VersionID, &o.Enabled, &o.Restricted, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan tenant overlay: %w", err)
		}
		o.UpdatedAt = time.Unix(updated, 0).UTC()
		out[o.VersionID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenant overlays: %w", err)
	}
	return out, nil
}

// SetOverlay upserts one tenant overlay row.
func (s *Store) SetOverlay(ctx context.Context, o types.TenantOverlay) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_overlays (tenant_id, version_id, enabled, restricted, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, version_id) DO UPDATE SET
			enabled = excluded.enabled,
			restricted = excluded.restricted,
			updated_at = excluded.updated_at`,
		o.TenantID, o.VersionID, o.Enabled, o.Restricted, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set overlay for tenant %s on version %d: %w", o.TenantID, o.VersionID, err)
	}
	return nil
}
