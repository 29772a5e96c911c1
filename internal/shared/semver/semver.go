package semver

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a semantic version.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3.
type Version struct {
	v *mm.Version
}

// Parse parses a version string such as "1.4.0".
func Parse(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

// MustParse parses raw and panics on error. For tests and constants.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// CompareRaw compares two version strings. Unparseable versions sort
// lowest, so a malformed stored value never masks a real update.
func CompareRaw(a, b string) int {
	av, aerr := Parse(a)
	bv, berr := Parse(b)
	if aerr != nil && berr != nil {
		return 0
	}
	if aerr != nil {
		return -1
	}
	if berr != nil {
		return 1
	}
	return Compare(av, bv)
}

// AtMost reports whether the required version is satisfied by the host
// version, i.e. required <= host. An empty requirement always passes.
func AtMost(required, host string) bool {
	if required == "" {
		return true
	}
	if host == "" {
		return false
	}
	return CompareRaw(required, host) <= 0
}
