// Package catalog assembles the per-tenant view of installed packages:
// shared upstream and curated versions, the tenant's own custom
// versions, and the tenant overlay layered on top.
package catalog

import (
	"sort"

	"github.com/jamestagal/leaplearn/registry/internal/shared/semver"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Input is everything Merge needs. Pure data, no store access, so the
// merge rules are testable without a database.
type Input struct {
	// Shared holds runnable upstream and curated versions, visible to
	// every tenant unless overlaid away.
	Shared []types.PackageVersion
	// Custom holds the requesting tenant's own runnable custom versions.
	Custom []types.PackageVersion
	// Overlays is the tenant's overlay, keyed by version id.
	Overlays map[int64]types.TenantOverlay
	// HostVersion gates versions by their minimum host requirement.
	HostVersion string
}

// Merge produces one catalog entry per machine name: the newest
// host-compatible version the overlay has not disabled. A newer stored
// version that did not qualify surfaces as an available update. Output
// is sorted by name.
func Merge(in Input) []types.CatalogEntry {
	byName := make(map[string][]types.PackageVersion)
	for _, v := range append(append([]types.PackageVersion(nil), in.Shared...), in.Custom...) {
		byName[v.Name] = append(byName[v.Name], v)
	}

	entries := make([]types.CatalogEntry, 0, len(byName))
	for _, versions := range byName {
		sort.Slice(versions, func(i, j int) bool {
			return compareTriple(versions[i].VersionKey, versions[j].VersionKey) > 0
		})

		chosen := pick(versions, in)
		if chosen == nil {
			continue
		}

		overlay, hasOverlay := in.Overlays[chosen.ID]
		// Updates are offered within the chosen provenance only: a
		// curated fork does not advertise the upstream line's newer
		// versions, and vice versa.
		newest := chosen
		for i := range versions {
			if versions[i].Provenance == chosen.Provenance {
				newest = &versions[i]
				break
			}
		}
		entries = append(entries, types.CatalogEntry{
			VersionID:       chosen.ID,
			VersionKey:      chosen.VersionKey,
			Title:           chosen.Title,
			Description:     chosen.Description,
			Categories:      chosen.Categories,
			IconRef:         chosen.IconRef,
			Provenance:      chosen.Provenance,
			Restricted:      hasOverlay && overlay.Restricted,
			UpdateAvailable: chosen.ID != newest.ID,
			LatestVersion:   newest.Version(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// pick returns the newest version that is host-compatible and not
// disabled by the overlay, or nil when every version is ruled out.
func pick(versions []types.PackageVersion, in Input) *types.PackageVersion {
	for i := range versions {
		v := &versions[i]
		if in.HostVersion != "" && !semver.AtMost(v.MinHostVersion, in.HostVersion) {
			continue
		}
		if overlay, ok := in.Overlays[v.ID]; ok && !overlay.Enabled {
			continue
		}
		return v
	}
	return nil
}

func compareTriple(a, b types.VersionKey) int {
	if a.Major != b.Major {
		return a.Major - b.Major
	}
	if a.Minor != b.Minor {
		return a.Minor - b.Minor
	}
	return a.Patch - b.Patch
}
