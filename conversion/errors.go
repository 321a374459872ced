package conversion

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoRule is returned when a field has no rule in the set.
	ErrNoRule = errors.New("no conversion rule found")

	// ErrNotPermitted is returned when the rule forbids the direction.
	ErrNotPermitted = errors.New("conversion not permitted")

	// ErrUnknownProductType is returned for the dynamic field when the
	// product type is not recognized.
	ErrUnknownProductType = errors.New("unrecognized product type")

	// ErrUnknownConversionType is returned for a direction other than
	// pension or capital_asset.
	ErrUnknownConversionType = errors.New("unknown conversion type")

	// ErrNothingSelected is returned when no component has a positive amount.
	ErrNothingSelected = errors.New("no amount selected for conversion")

	// ErrRejected wraps a failed account validation in Convert.
	ErrRejected = errors.New("conversion rejected")
)

// ComponentError describes why one component cannot be converted.
type ComponentError struct {
	Field   string
	Type    Type
	Message string // operator-facing text; falls back to Reason
	Reason  error
}

func (e *ComponentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Field, e.Reason, e.Type)
}

func (e *ComponentError) Unwrap() error { return e.Reason }
