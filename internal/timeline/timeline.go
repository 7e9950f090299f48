// Package timeline keeps a frame-indexed timeline partitioned into labeled,
// mutually exclusive intervals.
//
// A Timeline is either idle or recording one active interval whose end
// follows playback. Starting a new annotation closes the active interval and
// reserves the starting frame for the new one, splitting or truncating any
// closed interval that covered it. No frame is ever covered by two closed
// intervals once a public method returns.
package timeline

import (
	"cmp"
	"slices"
	"sync"
)

// Label identifies the behavior an interval was annotated with. The timeline
// only compares labels; it never interprets them.
type Label string

// Interval is a closed, inclusive range of frames sharing one label.
type Interval struct {
	StartFrame int
	EndFrame   int
	Label      Label
}

// Contains reports whether frame lies within the interval.
func (iv Interval) Contains(frame int) bool {
	return iv.StartFrame <= frame && frame <= iv.EndFrame
}

// Frames returns the number of frames the interval covers.
func (iv Interval) Frames() int {
	return iv.EndFrame - iv.StartFrame + 1
}

// state is either idle or recording.
type state interface {
	isState()
}

type idle struct{}

type recording struct {
	active Interval
}

func (idle) isState()      {}
func (recording) isState() {}

// Timeline is safe for concurrent use; every public method holds a single
// lock for its whole duration.
type Timeline struct {
	mu          sync.Mutex
	totalFrames int
	intervals   []Interval
	state       state
}

// New returns an empty, idle timeline for a video of totalFrames frames.
// A totalFrames of 0 means no video is loaded and frames are not range checked.
func New(totalFrames int) *Timeline {
	if totalFrames < 0 {
		totalFrames = 0
	}
	return &Timeline{
		totalFrames: totalFrames,
		state:       idle{},
	}
}

// TotalFrames returns the frame count the timeline was created with.
func (t *Timeline) TotalFrames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalFrames
}

// Begin starts a new annotation of label at frame at.
//
// If an annotation is being recorded it is closed first, ending at at. Then
// every closed interval covering at gives that frame up, so that at belongs
// only to the new active interval.
func (t *Timeline) Begin(label Label, at int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkFrame(at); err != nil {
		return err
	}

	intervals := t.intervals
	if rec, ok := t.state.(recording); ok {
		if at < rec.active.StartFrame {
			return &FrameError{Frame: at, Start: rec.active.StartFrame, Err: ErrBeforeActive}
		}
		closed := rec.active
		closed.EndFrame = at
		intervals = append(claim(intervals, closed.StartFrame, closed.EndFrame), closed)
	}

	t.intervals = claim(intervals, at, at)
	t.state = recording{active: Interval{StartFrame: at, EndFrame: at, Label: label}}
	return nil
}

// Extend moves the end of the active interval to frame to. It does nothing
// when no annotation is being recorded. Overlaps are not resolved here; the
// recorded range claims its frames when it is closed.
func (t *Timeline) Extend(to int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.state.(recording)
	if !ok {
		return nil
	}
	if err := t.checkFrame(to); err != nil {
		return err
	}
	if to < rec.active.StartFrame {
		return &FrameError{Frame: to, Start: rec.active.StartFrame, Err: ErrBeforeActive}
	}

	rec.active.EndFrame = to
	t.state = rec
	return nil
}

// Finalize closes the active interval without starting a new one.
func (t *Timeline) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.state.(recording)
	if !ok {
		return
	}
	a := rec.active
	t.intervals = append(claim(t.intervals, a.StartFrame, a.EndFrame), a)
	t.state = idle{}
}

// Load replaces every interval with records and stops any recording. Records
// that overlap, run backwards or fall outside the video are rejected with a
// *LoadError and the timeline is left as it was.
func (t *Timeline) Load(records []Interval) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := validate(records, t.totalFrames); err != nil {
		return err
	}
	t.intervals = slices.Clone(records)
	t.state = idle{}
	return nil
}

// Export returns every interval, including the active one at its current
// end, sorted by start frame.
func (t *Timeline) Export() []Interval {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Interval, 0, len(t.intervals)+1)
	out = append(out, t.intervals...)
	if rec, ok := t.state.(recording); ok {
		out = append(out, rec.active)
	}
	slices.SortStableFunc(out, func(a, b Interval) int {
		return cmp.Compare(a.StartFrame, b.StartFrame)
	})
	return out
}

// Intervals returns the closed intervals in insertion order.
func (t *Timeline) Intervals() []Interval {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.intervals)
}

// Active returns the interval being recorded, if any.
func (t *Timeline) Active() (Interval, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.state.(recording); ok {
		return rec.active, true
	}
	return Interval{}, false
}

// Recording reports whether an annotation is in progress.
func (t *Timeline) Recording() bool {
	_, ok := t.Active()
	return ok
}

// LabelAt returns the label covering frame. The active interval wins over a
// closed one that has not yet been trimmed.
func (t *Timeline) LabelAt(frame int) (Label, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.state.(recording); ok && rec.active.Contains(frame) {
		return rec.active.Label, true
	}
	for _, iv := range t.intervals {
		if iv.Contains(frame) {
			return iv.Label, true
		}
	}
	return "", false
}

func (t *Timeline) checkFrame(frame int) error {
	if frame < 0 || (t.totalFrames > 0 && frame >= t.totalFrames) {
		return &FrameError{Frame: frame, Total: t.totalFrames, Err: ErrOutOfRangeFrame}
	}
	return nil
}

// claim returns a copy of intervals with the frames [start, end] removed.
// An interval cut in the middle becomes two intervals with the same label;
// one left with no frames is dropped. Relative order is preserved.
func claim(intervals []Interval, start, end int) []Interval {
	out := make([]Interval, 0, len(intervals)+1)
	for _, iv := range intervals {
		if iv.EndFrame < start || iv.StartFrame > end {
			out = append(out, iv)
			continue
		}
		if iv.StartFrame < start {
			out = append(out, Interval{StartFrame: iv.StartFrame, EndFrame: start - 1, Label: iv.Label})
		}
		if iv.EndFrame > end {
			out = append(out, Interval{StartFrame: end + 1, EndFrame: iv.EndFrame, Label: iv.Label})
		}
	}
	return out
}

func validate(records []Interval, totalFrames int) error {
	for i, r := range records {
		switch {
		case r.StartFrame < 0:
			return &LoadError{Index: i, Record: r, Reason: "start_frame is negative"}
		case r.EndFrame < r.StartFrame:
			return &LoadError{Index: i, Record: r, Reason: "end_frame is before start_frame"}
		case totalFrames > 0 && r.EndFrame >= totalFrames:
			return &LoadError{Index: i, Record: r, Reason: "end_frame is past the last frame of the video"}
		}
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(records[a].StartFrame, records[b].StartFrame)
	})
	for k := 1; k < len(order); k++ {
		prev, cur := records[order[k-1]], records[order[k]]
		if cur.StartFrame <= prev.EndFrame {
			return &LoadError{Index: order[k], Record: cur, Reason: "overlaps another interval"}
		}
	}
	return nil
}
