package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String length limits
const (
	MaxMachineNameLength = 128
	MaxTitleLength       = 256
	MaxDescriptionLength = 2048
	MaxTenantIDLength    = 64
	MaxCategoryLength    = 64
	MaxCategoryCount     = 20
)

// Regular expressions for validation
var (
	// MachineNamePattern allows dotted machine names such as "Hub.Quiz"
	// plus hyphens and underscores within segments.
	MachineNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*(\.[A-Za-z][A-Za-z0-9_-]*)*$`)
	// TenantIDPattern allows alphanumeric, hyphens, underscores
	TenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// String validates a string field with length and content checks.
func String(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// MachineName validates a package machine name such as "Hub.Quiz".
func MachineName(name string) error {
	if err := String(name, "machine_name", 1, MaxMachineNameLength, true); err != nil {
		return err
	}

	if !MachineNamePattern.MatchString(name) {
		return fmt.Errorf("machine_name contains invalid characters (dotted segments of alphanumeric, hyphens, and underscores allowed)")
	}

	return nil
}

// TenantID validates a tenant identifier.
func TenantID(id string, required bool) error {
	if err := String(id, "tenant_id", 1, MaxTenantIDLength, required); err != nil {
		return err
	}

	if id != "" && !TenantIDPattern.MatchString(id) {
		return fmt.Errorf("tenant_id contains invalid characters (only alphanumeric, hyphens, and underscores allowed)")
	}

	return nil
}

// VersionTriple validates the numeric components of a version identity.
func VersionTriple(major, minor, patch int) error {
	if major < 0 || minor < 0 || patch < 0 {
		return fmt.Errorf("version components must not be negative")
	}
	return nil
}

// Title validates a display title.
func Title(title string, required bool) error {
	return String(title, "title", 1, MaxTitleLength, required)
}

// Description validates a description field.
func Description(description string) error {
	return String(description, "description", 0, MaxDescriptionLength, false)
}

// Categories validates discovery categories.
func Categories(categories []string) error {
	if len(categories) > MaxCategoryCount {
		return fmt.Errorf("too many categories (maximum %d)", MaxCategoryCount)
	}

	for i, c := range categories {
		if err := String(c, fmt.Sprintf("categories[%d]", i), 1, MaxCategoryLength, false); err != nil {
			return err
		}
	}

	return nil
}
