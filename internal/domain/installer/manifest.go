package installer

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
	"github.com/jamestagal/leaplearn/registry/internal/shared/validate"
)

// sanitizer strips every HTML construct from manifest text fields
// before they reach catalog responses.
var sanitizer = bluemonday.StrictPolicy()

// readManifest locates and parses the package descriptor. JSON wins
// when both forms are present.
func readManifest(files map[string][]byte) (*types.Manifest, error) {
	var m types.Manifest
	switch {
	case files["package.json"] != nil:
		if err := sonic.Unmarshal(files["package.json"], &m); err != nil {
			return nil, fmt.Errorf("malformed package.json: %w", errs.ErrInvalidPackage)
		}
	case files["package.yaml"] != nil:
		if err := yaml.Unmarshal(files["package.yaml"], &m); err != nil {
			return nil, fmt.Errorf("malformed package.yaml: %w", errs.ErrInvalidPackage)
		}
	case files["package.yml"] != nil:
		if err := yaml.Unmarshal(files["package.yml"], &m); err != nil {
			return nil, fmt.Errorf("malformed package.yml: %w", errs.ErrInvalidPackage)
		}
	default:
		return nil, fmt.Errorf("archive carries no package.json or package.yaml: %w", errs.ErrInvalidPackage)
	}
	return &m, nil
}

// validateManifest enforces the descriptor contract and sanitizes
// user-supplied text in place.
func validateManifest(m *types.Manifest) error {
	if err := validate.MachineName(m.Name); err != nil {
		return fmt.Errorf("%s: %w", err, errs.ErrInvalidPackage)
	}
	if err := validate.VersionTriple(m.Major, m.Minor, m.Patch); err != nil {
		return fmt.Errorf("%s: %w", err, errs.ErrInvalidPackage)
	}
	if err := validate.Title(m.Title, true); err != nil {
		return fmt.Errorf("%s: %w", err, errs.ErrInvalidPackage)
	}
	if err := validate.Description(m.Description); err != nil {
		return fmt.Errorf("%s: %w", err, errs.ErrInvalidPackage)
	}
	if err := validate.Categories(m.Categories); err != nil {
		return fmt.Errorf("%s: %w", err, errs.ErrInvalidPackage)
	}

	m.Title = strings.TrimSpace(sanitizer.Sanitize(m.Title))
	m.Description = strings.TrimSpace(sanitizer.Sanitize(m.Description))
	for i, c := range m.Categories {
		m.Categories[i] = strings.TrimSpace(sanitizer.Sanitize(c))
	}

	seen := make(map[types.VersionKey]bool, len(m.Dependencies))
	for _, d := range m.Dependencies {
		if err := validate.MachineName(d.Name); err != nil {
			return fmt.Errorf("dependency %q: %s: %w", d.Name, err, errs.ErrInvalidPackage)
		}
		if !d.Type.Valid() {
			return fmt.Errorf("dependency %s declares unknown edge type %q: %w", d.Name, d.Type, errs.ErrInvalidPackage)
		}
		if d.Key() == m.Key() {
			return fmt.Errorf("package %s depends on itself: %w", m.Name, errs.ErrInvalidPackage)
		}
		key := d.Key()
		if seen[key] {
			return fmt.Errorf("dependency %s declared twice: %w", key, errs.ErrInvalidPackage)
		}
		seen[key] = true
	}
	return nil
}
