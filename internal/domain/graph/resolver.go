// Package graph resolves the dependency closure of installed package
// versions into a deterministic, load-ready order.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// MaxDepth bounds the breadth-first expansion. Legitimate dependency
// chains stay shallow; a traversal this deep means the edge set is
// corrupt or cyclic, and the resolver fails closed rather than looping.
const MaxDepth = 20

// Graph supplies versions and typed edges to the resolver. Satisfied by
// the registry store.
type Graph interface {
	GetByID(ctx context.Context, id int64) (*types.PackageVersion, error)
	EdgesFromFiltered(ctx context.Context, fromID int64, kinds []types.EdgeType) ([]types.DependencyEdge, error)
}

// Resolver walks dependency edges breadth-first and orders the closure
// so every package appears after everything it depends on.
type Resolver struct {
	graph Graph
}

// New creates a resolver over a dependency graph.
func New(g Graph) *Resolver {
	return &Resolver{graph: g}
}

// Resolve returns the full dependency closure of roots, restricted to
// the given edge types, ordered dependencies-first. Each version
// appears exactly once regardless of how many paths reach it. Ties at
// the same depth break lexicographically by package name, so the same
// graph always yields the same list.
func (r *Resolver) Resolve(ctx context.Context, roots []int64, kinds []types.EdgeType) ([]types.ResolvedPackage, error) {
	adjacency := make(map[int64][]int64)
	visited := make(map[int64]bool)

	var frontier []int64
	for _, id := range roots {
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	// Closure by breadth-first levels. The depth counter covers chains,
	// not node count: a diamond costs one level, not two.
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= MaxDepth {
			return nil, fmt.Errorf("dependency chain exceeds %d hops: %w", MaxDepth, errs.ErrDependencyCycleSuspected)
		}

		var next []int64
		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			edges, err := r.graph.EdgesFromFiltered(ctx, id, kinds)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				adjacency[id] = append(adjacency[id], e.ToID)
				if !visited[e.ToID] {
					visited[e.ToID] = true
					next = append(next, e.ToID)
				}
			}
		}
		frontier = next
	}

	versions := make(map[int64]*types.PackageVersion, len(visited))
	for id := range visited {
		v, err := r.graph.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		versions[id] = v
	}

	ordered, err := topoOrder(roots, adjacency, versions)
	if err != nil {
		return nil, err
	}

	out := make([]types.ResolvedPackage, 0, len(ordered))
	for _, id := range ordered {
		v := versions[id]
		out = append(out, types.ResolvedPackage{
			VersionID:  id,
			VersionKey: v.VersionKey,
			AssetRoot:  v.AssetRoot,
			ArchiveRef: v.ArchiveRef,
		})
	}
	return out, nil
}

// topoOrder emits dependencies before dependents via iterative
// post-order DFS. Children are visited in name order so the output is
// stable across runs. A gray node hit during descent is a cycle the
// depth cap did not happen to catch first.
func topoOrder(roots []int64, adjacency map[int64][]int64, versions map[int64]*types.PackageVersion) ([]int64, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // emitted
	)

	color := make(map[int64]int, len(versions))
	var order []int64

	byName := func(ids []int64) []int64 {
		sorted := append([]int64(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool {
			a, b := versions[sorted[i]], versions[sorted[j]]
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return sorted[i] < sorted[j]
		})
		return sorted
	}

	type frame struct {
		id       int64
		children []int64
		next     int
	}

	for _, root := range byName(roots) {
		if color[root] != white {
			continue
		}
		stack := []frame{{id: root, children: byName(adjacency[root])}}
		color[root] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.children) {
				child := top.children[top.next]
				top.next++
				switch color[child] {
				case gray:
					return nil, fmt.Errorf("dependency cycle through %s: %w", versions[child].VersionKey, errs.ErrDependencyCycleSuspected)
				case white:
					color[child] = gray
					stack = append(stack, frame{id: child, children: byName(adjacency[child])})
				}
				continue
			}
			color[top.id] = black
			order = append(order, top.id)
			stack = stack[:len(stack)-1]
		}
	}
	return order, nil
}
