package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

func version(id int64, name string, major, minor, patch int, provenance types.Provenance) types.PackageVersion {
	return types.PackageVersion{
		ID:             id,
		VersionKey:     types.VersionKey{Name: name, Major: major, Minor: minor, Patch: patch},
		Title:          name,
		Runnable:       true,
		Provenance:     provenance,
		MinHostVersion: "1.0.0",
	}
}

func TestMerge(t *testing.T) {
	t.Run("NewestVersionPerName", func(t *testing.T) {
		entries := Merge(Input{
			Shared: []types.PackageVersion{
				version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream),
				version(2, "quiz", 1, 4, 2, types.ProvenanceUpstream),
				version(3, "quiz", 1, 2, 0, types.ProvenanceUpstream),
			},
			HostVersion: "2.0.0",
		})
		require.Len(t, entries, 1)
		assert.Equal(t, int64(2), entries[0].VersionID)
		assert.Equal(t, "1.4.2", entries[0].Version())
		assert.False(t, entries[0].UpdateAvailable)
	})

	t.Run("HostIncompatibleFallsBack", func(t *testing.T) {
		older := version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream)
		newer := version(2, "quiz", 2, 0, 0, types.ProvenanceUpstream)
		newer.MinHostVersion = "3.0.0"

		entries := Merge(Input{
			Shared:      []types.PackageVersion{older, newer},
			HostVersion: "2.0.0",
		})
		require.Len(t, entries, 1)
		assert.Equal(t, int64(1), entries[0].VersionID)
		assert.True(t, entries[0].UpdateAvailable)
		assert.Equal(t, "2.0.0", entries[0].LatestVersion)
	})

	t.Run("OverlayDisableHidesVersion", func(t *testing.T) {
		entries := Merge(Input{
			Shared: []types.PackageVersion{
				version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream),
				version(2, "quiz", 1, 1, 0, types.ProvenanceUpstream),
			},
			Overlays: map[int64]types.TenantOverlay{
				2: {VersionID: 2, Enabled: false},
			},
			HostVersion: "2.0.0",
		})
		require.Len(t, entries, 1)
		assert.Equal(t, int64(1), entries[0].VersionID)
		assert.True(t, entries[0].UpdateAvailable)
	})

	t.Run("OverlayDisableAllHidesName", func(t *testing.T) {
		entries := Merge(Input{
			Shared: []types.PackageVersion{
				version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream),
			},
			Overlays: map[int64]types.TenantOverlay{
				1: {VersionID: 1, Enabled: false},
			},
			HostVersion: "2.0.0",
		})
		assert.Empty(t, entries)
	})

	t.Run("OverlayRestrictionSurfaces", func(t *testing.T) {
		entries := Merge(Input{
			Shared: []types.PackageVersion{
				version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream),
			},
			Overlays: map[int64]types.TenantOverlay{
				1: {VersionID: 1, Enabled: true, Restricted: true},
			},
			HostVersion: "2.0.0",
		})
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Restricted)
	})

	t.Run("UpdateOfferedWithinProvenanceOnly", func(t *testing.T) {
		// A newer upstream release does not advertise an update for a
		// tenant pinned to the curated fork of the same name.
		entries := Merge(Input{
			Shared: []types.PackageVersion{
				version(1, "quiz", 1, 0, 0, types.ProvenanceCurated),
				version(2, "quiz", 2, 0, 0, types.ProvenanceUpstream),
			},
			Overlays: map[int64]types.TenantOverlay{
				2: {VersionID: 2, Enabled: false},
			},
			HostVersion: "2.0.0",
		})
		require.Len(t, entries, 1)
		assert.Equal(t, int64(1), entries[0].VersionID)
		assert.Equal(t, types.ProvenanceCurated, entries[0].Provenance)
		assert.False(t, entries[0].UpdateAvailable)
		assert.Equal(t, "1.0.0", entries[0].LatestVersion)
	})

	t.Run("CustomMergesAlongsideShared", func(t *testing.T) {
		entries := Merge(Input{
			Shared: []types.PackageVersion{
				version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream),
			},
			Custom: []types.PackageVersion{
				version(2, "acme-widget", 1, 0, 0, types.ProvenanceCustom),
			},
			HostVersion: "2.0.0",
		})
		require.Len(t, entries, 2)
		assert.Equal(t, "acme-widget", entries[0].Name)
		assert.Equal(t, types.ProvenanceCustom, entries[0].Provenance)
		assert.Equal(t, "quiz", entries[1].Name)
	})

	t.Run("NoHostVersionAdmitsEverything", func(t *testing.T) {
		v := version(1, "quiz", 1, 0, 0, types.ProvenanceUpstream)
		v.MinHostVersion = "99.0.0"
		entries := Merge(Input{Shared: []types.PackageVersion{v}})
		assert.Len(t, entries, 1)
	})
}
