// Package types provides shared data structures for the registry service.
//
// This package defines core types used across all registry components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - PackageVersion: One stored package version (immutable identity tuple)
//   - DependencyEdge: Typed directed dependency between versions
//   - TenantOverlay: Per-tenant enable/restrict state
//   - MirrorCursor: Last-synced state of a mirror source
//   - Manifest: Machine-readable archive descriptor
//
// Result Types:
//   - CatalogEntry: One row of a tenant's merged catalog
//   - ResolvedPackage: One entry of an ordered asset-load list
//   - InstallResult, SyncReport: Operation outcomes
package types
