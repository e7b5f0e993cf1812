package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingReference means a rate mode needs a population the reference table lacks.
	ErrMissingReference = errors.New("missing population reference")

	// ErrNonPositiveDenominator means a rate denominator is zero or negative.
	ErrNonPositiveDenominator = errors.New("non-positive denominator")

	// ErrUnknownRegion means the selection names a region the table does not hold.
	ErrUnknownRegion = errors.New("unknown region")

	// ErrInvalidSelection means the selection itself is malformed.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrNotReady means no snapshot has been loaded yet.
	ErrNotReady = errors.New("no snapshot loaded")
)

// RegionError reports why a single region's series could not be computed.
type RegionError struct {
	Region string
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %q: %v", e.Region, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }

func invalidSelection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSelection, fmt.Sprintf(format, args...))
}
