package util

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/yaroslav/microdc/models"
)

// nodeNamePattern matches cluster node host names.
var nodeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidateUUID checks if a string is a valid UUID.
//
// Parameters:
//   - id: The string to validate as UUID
//
// Returns:
//   - error: An error if the string is not a valid UUID, nil otherwise
//
// Example:
//
//	if err := util.ValidateUUID(c.Param("id")); err != nil {
//	    return models.ErrInvalidRequest
//	}
func ValidateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	return nil
}

// ValidateVLANTag checks that tag is a usable 802.1Q VLAN identifier.
// Tags 0, 1 and 4095 are reserved.
func ValidateVLANTag(tag int) error {
	if tag < models.MinVLANTag || tag > models.MaxVLANTag {
		return fmt.Errorf("%w: vlan tag %d out of range %d-%d",
			models.ErrValidationFailed, tag, models.MinVLANTag, models.MaxVLANTag)
	}
	return nil
}

// ValidateRange checks that r is non-empty and lies within [lo, hi].
//
// Parameters:
//   - name: Pool name used in the error message (e.g., "tag pool")
//   - r: Range to check
//   - lo: Lowest allowed value
//   - hi: Highest allowed value
//
// Returns:
//   - error: ErrValidationFailed (wrapped) if the range is inverted or out of bounds
func ValidateRange(name string, r models.Range, lo, hi int) error {
	if r.Size() == 0 {
		return fmt.Errorf("%w: %s %d-%d is empty", models.ErrValidationFailed, name, r.Min, r.Max)
	}
	if r.Min < lo || r.Max > hi {
		return fmt.Errorf("%w: %s %d-%d must lie within %d-%d",
			models.ErrValidationFailed, name, r.Min, r.Max, lo, hi)
	}
	return nil
}

// ValidateNodeName checks that name is a valid cluster node host name.
// Node names end up in request paths, so anything else is refused.
func ValidateNodeName(name string) error {
	if !nodeNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid node name %q", models.ErrValidationFailed, name)
	}
	return nil
}
