package timeline

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRangeFrame is returned for a negative frame or one at or past
	// the end of the video.
	ErrOutOfRangeFrame = errors.New("frame out of range")

	// ErrBeforeActive is returned when a frame precedes the start of the
	// interval being recorded.
	ErrBeforeActive = errors.New("frame precedes active annotation")

	// ErrInvalidLoad is returned when persisted intervals break the
	// timeline's invariants.
	ErrInvalidLoad = errors.New("invalid annotations")
)

// FrameError describes a rejected frame. Total is set for range errors and
// Start for frames before the active interval.
type FrameError struct {
	Frame int
	Total int
	Start int
	Err   error
}

func (e *FrameError) Error() string {
	if errors.Is(e.Err, ErrBeforeActive) {
		return fmt.Sprintf("frame %d: %v starting at frame %d", e.Frame, e.Err, e.Start)
	}
	if e.Total > 0 {
		return fmt.Sprintf("frame %d: %v (video has %d frames)", e.Frame, e.Err, e.Total)
	}
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// LoadError identifies the first offending record of a rejected load.
type LoadError struct {
	Index  int
	Record Interval
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%v: record %d [%d, %d] %q: %s",
		ErrInvalidLoad, e.Index, e.Record.StartFrame, e.Record.EndFrame, e.Record.Label, e.Reason)
}

func (e *LoadError) Unwrap() error { return ErrInvalidLoad }
