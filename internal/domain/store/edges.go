package store

import (
	"context"
	"fmt"

	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// EdgesFrom returns the outgoing dependency edges of a version, in a
// stable order so the resolver's traversal is deterministic.
func (s *Store) EdgesFrom(ctx context.Context, fromID int64) ([]types.DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, edge_type FROM dependency_edges
		 WHERE from_id = ? ORDER BY to_id, edge_type`,
		fromID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges of version %d: %w", fromID, err)
	}
	defer rows.Close()

	var out []types.DependencyEdge
	for rows.Next() {
		var e types.DependencyEdge
		var edgeType string
		if err := rows.Scan(&e.FromID, &e.ToID, &edgeType); err != nil {
			return nil, fmt.Errorf("failed to scan dependency edge: %w", err)
		}
		e.Type = types.EdgeType(edgeType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dependency edges: %w", err)
	}
	return out, nil
}

// EdgesFromFiltered returns outgoing edges restricted to the given edge
// types. An empty filter behaves like EdgesFrom.
func (s *Store) EdgesFromFiltered(ctx context.Context, fromID int64, kinds []types.EdgeType) ([]types.DependencyEdge, error) {
	if len(kinds) == 0 {
		return s.EdgesFrom(ctx, fromID)
	}

	edges, err := s.EdgesFrom(ctx, fromID)
	if err != nil {
		return nil, err
	}

	allowed := make(map[types.EdgeType]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}

	filtered := edges[:0]
	for _, e := range edges {
		if allowed[e.Type] {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
