package timeline

// Command is a host request applied to a Timeline. Hosts translate input
// events into commands and hand them to Apply.
type Command interface {
	apply(t *Timeline) error
}

// Begin starts an annotation of Label at Frame.
type Begin struct {
	Label Label
	Frame int
}

// Extend moves the active annotation's end to Frame.
type Extend struct {
	Frame int
}

// Finalize closes the active annotation.
type Finalize struct{}

func (c Begin) apply(t *Timeline) error  { return t.Begin(c.Label, c.Frame) }
func (c Extend) apply(t *Timeline) error { return t.Extend(c.Frame) }
func (Finalize) apply(t *Timeline) error {
	t.Finalize()
	return nil
}

// Apply runs cmd against the timeline.
func (t *Timeline) Apply(cmd Command) error {
	return cmd.apply(t)
}
