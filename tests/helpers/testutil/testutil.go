// Package testutil provides archive builders and registry fixtures for
// tests.
package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/sqlite"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// OpenStore opens a migrated registry store on a throwaway database.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

// SimpleManifest returns a runnable manifest for name at version
// major.minor.patch with no dependencies.
func SimpleManifest(name string, major, minor, patch int) *types.Manifest {
	return &types.Manifest{
		Name:           name,
		Title:          "Title of " + name,
		Description:    "Test package " + name,
		Major:          major,
		Minor:          minor,
		Patch:          patch,
		Runnable:       true,
		Categories:     []string{"testing"},
		MinHostVersion: "1.0.0",
	}
}

// WithDependency appends one declared dependency to a manifest.
func WithDependency(m *types.Manifest, name string, major, minor, patch int, kind types.EdgeType) *types.Manifest {
	m.Dependencies = append(m.Dependencies, types.ManifestDependency{
		Name:  name,
		Major: major,
		Minor: minor,
		Patch: patch,
		Type:  kind,
	})
	return m
}

// ZipArchive builds an in-memory zip from the file map, injecting the
// manifest as package.json.
func ZipArchive(t *testing.T, manifest *types.Manifest, files map[string][]byte) []byte {
	t.Helper()
	all := withManifest(t, manifest, files)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range sortedNames(all) {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(all[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// TarGzArchive builds an in-memory gzipped tarball from the file map,
// injecting the manifest as package.json.
func TarGzArchive(t *testing.T, manifest *types.Manifest, files map[string][]byte) []byte {
	t.Helper()
	all := withManifest(t, manifest, files)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range sortedNames(all) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(all[name])),
		}))
		_, err := tw.Write(all[name])
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// ContentArchive builds a zip for a manifest with a deterministic
// payload file, so two calls with the same seed hash identically.
func ContentArchive(t *testing.T, manifest *types.Manifest, seed string) []byte {
	t.Helper()
	return ZipArchive(t, manifest, map[string][]byte{
		"scripts/main.js": []byte(fmt.Sprintf("// %s\nexport default {};\n", seed)),
	})
}

func withManifest(t *testing.T, manifest *types.Manifest, files map[string][]byte) map[string][]byte {
	t.Helper()
	all := make(map[string][]byte, len(files)+1)
	for name, content := range files {
		all[name] = content
	}
	if manifest != nil {
		encoded, err := sonic.Marshal(manifest)
		require.NoError(t, err)
		all["package.json"] = encoded
	}
	return all
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
