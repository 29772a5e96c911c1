package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Cursor returns the mirror cursor for a source. A source that never
// synced yields a zero cursor, not an error.
func (s *Store) Cursor(ctx context.Context, source string) (types.MirrorCursor, error) {
	var c types.MirrorCursor
	var synced sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT source, digest, synced_at, last_error FROM mirror_cursors WHERE source = ?`,
		source,
	).Scan(&c.Source, &c.Digest, &synced, &c.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return types.MirrorCursor{Source: source}, nil
	}
	if err != nil {
		return types.MirrorCursor{}, fmt.Errorf("failed to read mirror cursor for %s: %w", source, err)
	}
	if synced.Valid {
		t := time.Unix(synced.Int64, 0).UTC()
		c.SyncedAt = &t
	}
	return c, nil
}

// PutCursor upserts a mirror cursor.
func (s *Store) PutCursor(ctx context.Context, c types.MirrorCursor) error {
	var synced any
	if c.SyncedAt != nil {
		synced = c.SyncedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mirror_cursors (source, digest, synced_at, last_error)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET
			digest = excluded.digest,
			synced_at = excluded.synced_at,
			last_error = excluded.last_error`,
		c.Source, c.Digest, synced, c.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to write mirror cursor for %s: %w", c.Source, err)
	}
	return nil
}
