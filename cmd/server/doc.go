// Package main is the entry point for the package registry server.
//
// The server exposes the tenant catalog, dependency resolution,
// archive installation, and the hub surface over REST, and runs the
// upstream mirror on an interval.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML file via -config (env vars override)
//   - Defaults for development
//
// Usage:
//
//	./server -port 8000
//	./server -config /etc/registry/config.toml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
