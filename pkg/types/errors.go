package types

import (
	"errors"
	"fmt"
)

// Core error taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidCoordinate fails the triggering write
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidSortRequest is returned when DISTANCE sort is requested without a geo filter
	ErrInvalidSortRequest = errors.New("invalid sort request")
	// ErrEntityNotIndexed signals a source row whose derived representation is missing.
	// Reaching it means the maintenance invariant was broken.
	ErrEntityNotIndexed = errors.New("entity not indexed")
	// ErrStoreUnavailable wraps failures to reach the backing store
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidRequest covers malformed filter shapes (inverted ranges, bad radius)
	ErrInvalidRequest = errors.New("invalid search request")
	// ErrInvalidEntity wraps source-field validation failures on write
	ErrInvalidEntity = errors.New("invalid entity")
)

// CoordinateError names the coordinate field that failed validation
type CoordinateError struct {
	Field string
	Value float64
}

func (e *CoordinateError) Error() string {
	switch e.Field {
	case FieldLatitude:
		return fmt.Sprintf("invalid coordinate: latitude %v must be within [-90, 90]", e.Value)
	case FieldLongitude:
		return fmt.Sprintf("invalid coordinate: longitude %v must be within [-180, 180]", e.Value)
	default:
		return fmt.Sprintf("invalid coordinate: %s %v", e.Field, e.Value)
	}
}

// Is lets errors.Is(err, ErrInvalidCoordinate) match
func (e *CoordinateError) Is(target error) bool {
	return target == ErrInvalidCoordinate
}
