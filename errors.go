package lgadcore

import (
	"errors"
	"fmt"
)

var (
	// ErrGeometry is matched by every *GeometryError.
	ErrGeometry = errors.New("hit outside instrumented plane")
	// ErrFitDegenerate marks a profile that cannot constrain the model.
	ErrFitDegenerate = errors.New("fit degenerate")
	// ErrFitNonConvergence marks a fit that exhausted its iteration budget.
	ErrFitNonConvergence = errors.New("fit did not converge")
	// ErrInvariantViolation signals a defect in the charge model.
	ErrInvariantViolation = errors.New("charge map invariant violated")
	// ErrInvalidEnergy is returned for hits with a non-positive or non-finite deposit.
	ErrInvalidEnergy = errors.New("deposited energy must be positive and finite")
)

// GeometryError reports a hit that lies outside the instrumented plane.
type GeometryError struct {
	X, Y     float64
	HalfSize float64
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%v: (%.6g, %.6g) not within ±%.6g", ErrGeometry, e.X, e.Y, e.HalfSize)
}

func (e *GeometryError) Is(target error) bool {
	return target == ErrGeometry
}
