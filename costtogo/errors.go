package costtogo

import (
	"errors"
	"fmt"
)

var (
	// ErrRange is matched by every RangeError.
	ErrRange = errors.New("costtogo: stage range out of bounds")
	// ErrMissingHistory is matched by every MissingHistoryError.
	ErrMissingHistory = errors.New("costtogo: trajectory does not cover the required history")
	// ErrShortTrajectory is returned when a Markovian slice is handed a
	// trajectory that neither spans its end stage nor equals its window.
	ErrShortTrajectory = errors.New("costtogo: trajectory does not cover the slice")
	// ErrNonFiniteCost is returned when a stage cost evaluates to NaN or Inf.
	ErrNonFiniteCost = errors.New("costtogo: non-finite stage cost")
)

// RangeError reports invalid [Start, End) bounds against a length.
type RangeError struct {
	Start, End int
	Len        int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("costtogo: invalid stage range [%d, %d) for length %d", e.Start, e.End, e.Len)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}

// MissingHistoryError reports a non-Markovian evaluation given a trajectory
// shorter than the full horizon of its root.
type MissingHistoryError struct {
	Required int
	Got      int
}

func (e *MissingHistoryError) Error() string {
	return fmt.Sprintf("costtogo: non-Markovian evaluation needs a trajectory of length %d, got %d", e.Required, e.Got)
}

func (e *MissingHistoryError) Is(target error) bool {
	return target == ErrMissingHistory
}

func checkRange(start, end, length int) error {
	if start < 0 || end > length || start >= end {
		return &RangeError{Start: start, End: end, Len: length}
	}
	return nil
}
