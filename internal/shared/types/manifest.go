package types

// Manifest is the machine-readable descriptor every package archive must
// carry, either as package.json or package.yaml at the archive root.
type Manifest struct {
	Name           string               `json:"machine_name" yaml:"machine_name"`
	Title          string               `json:"title" yaml:"title"`
	Description    string               `json:"description" yaml:"description"`
	Major          int                  `json:"major_version" yaml:"major_version"`
	Minor          int                  `json:"minor_version" yaml:"minor_version"`
	Patch          int                  `json:"patch_version" yaml:"patch_version"`
	Runnable       bool                 `json:"runnable" yaml:"runnable"`
	Categories     []string             `json:"categories" yaml:"categories"`
	MinHostVersion string               `json:"min_host_version" yaml:"min_host_version"`
	Dependencies   []ManifestDependency `json:"dependencies" yaml:"dependencies"`
}

// ManifestDependency is one declared dependency on another package version.
type ManifestDependency struct {
	Name  string   `json:"machine_name" yaml:"machine_name"`
	Major int      `json:"major_version" yaml:"major_version"`
	Minor int      `json:"minor_version" yaml:"minor_version"`
	Patch int      `json:"patch_version" yaml:"patch_version"`
	Type  EdgeType `json:"type" yaml:"type"`
}

// Key returns the manifest's identity tuple.
func (m *Manifest) Key() VersionKey {
	return VersionKey{Name: m.Name, Major: m.Major, Minor: m.Minor, Patch: m.Patch}
}

// Key returns the dependency's identity tuple.
func (d ManifestDependency) Key() VersionKey {
	return VersionKey{Name: d.Name, Major: d.Major, Minor: d.Minor, Patch: d.Patch}
}
