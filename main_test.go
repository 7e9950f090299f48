package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aschmelyun/tlabel/internal/config"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

func testModel(t *testing.T) model {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newModel(config.Default(), logger, "flip.mp4", filepath.Join(t.TempDir(), "flip.csv"))
}

func loadedModel(t *testing.T, frames int) model {
	t.Helper()
	m, cmd := update(testModel(t), videoProbedMsg{info: videoInfo{totalFrames: frames, fps: 30}})
	if cmd != nil {
		t.Fatal("expected no follow-up command without an annotation file")
	}
	return m
}

func update(m model, msg tea.Msg) (model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "shift+right":
		return tea.KeyMsg{Type: tea.KeyShiftRight}
	case "shift+left":
		return tea.KeyMsg{Type: tea.KeyShiftLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m model, keys ...string) model {
	for _, k := range keys {
		m, _ = update(m, keyPress(k))
	}
	return m
}

func TestModel_LabelKeysDriveTimeline(t *testing.T) {
	m := loadedModel(t, 100)

	m = press(m, "a", "right", "right", "right", "right", "right", "s")

	want := []timeline.Interval{
		{StartFrame: 0, EndFrame: 4, Label: "Upside Down"},
		{StartFrame: 5, EndFrame: 5, Label: "Being flipped"},
	}
	if got := m.timeline.Export(); !slices.Equal(got, want) {
		t.Errorf("Export() = %v, want %v", got, want)
	}
	if !m.dirty {
		t.Error("model not marked dirty after labeling")
	}
}

func TestModel_SeekDoesNotExtend(t *testing.T) {
	m := loadedModel(t, 100)

	m = press(m, "shift+right", "d", "shift+right", "shift+left", "left")

	if m.frame != 9 {
		t.Fatalf("frame = %d, want 9", m.frame)
	}
	active, ok := m.timeline.Active()
	if !ok || active.StartFrame != 10 || active.EndFrame != 20 {
		t.Errorf("active = %v, %v, want [10, 20]", active, ok)
	}

	m = press(m, "x")
	if m.timeline.Recording() {
		t.Error("still recording after x")
	}
}

func TestModel_LabelBeforeActiveStartShowsError(t *testing.T) {
	m := loadedModel(t, 100)

	m = press(m, "shift+right", "a", "shift+left", "s")

	if !strings.Contains(m.errorMsg, "press x") {
		t.Errorf("errorMsg = %q, want hint to stop recording", m.errorMsg)
	}
	if active, _ := m.timeline.Active(); active.Label != "Upside Down" || active.StartFrame != 10 {
		t.Errorf("active = %v, want the original recording", active)
	}

	m = press(m, "?")
	if m.errorMsg != "" {
		t.Errorf("errorMsg = %q, want it cleared on next key", m.errorMsg)
	}
}

func TestModel_Playback(t *testing.T) {
	m := loadedModel(t, 3)
	m = press(m, "a")

	m, cmd := update(m, keyPress(" "))
	if !m.playing || cmd == nil {
		t.Fatalf("playing = %v, cmd = %v after space", m.playing, cmd)
	}

	// A tick from an earlier play session is ignored.
	m, cmd = update(m, tickMsg{id: m.tickID - 1})
	if m.frame != 0 || cmd != nil {
		t.Errorf("stale tick moved to frame %d", m.frame)
	}

	m, cmd = update(m, tickMsg{id: m.tickID})
	if m.frame != 1 || cmd == nil {
		t.Errorf("frame = %d after tick, want 1 and another tick", m.frame)
	}
	m, _ = update(m, tickMsg{id: m.tickID})
	m, cmd = update(m, tickMsg{id: m.tickID})

	if m.frame != 2 || m.playing || cmd != nil {
		t.Errorf("frame = %d, playing = %v at end of video", m.frame, m.playing)
	}
	if active, _ := m.timeline.Active(); active.EndFrame != 2 {
		t.Errorf("active = %v, want it extended to frame 2", active)
	}

	m, cmd = update(m, keyPress(" "))
	if m.playing || cmd != nil {
		t.Error("playback restarted on the last frame")
	}
}

func TestModel_PlaybackSpeed(t *testing.T) {
	m := loadedModel(t, 100)

	m = press(m, "+")
	if m.intervalMS != 65 {
		t.Errorf("intervalMS = %d after +, want 65", m.intervalMS)
	}
	for i := 0; i < 20; i++ {
		m = press(m, "=")
	}
	if m.intervalMS != 1 {
		t.Errorf("intervalMS = %d, want clamped to 1", m.intervalMS)
	}
	for i := 0; i < 30; i++ {
		m = press(m, "-")
	}
	if m.intervalMS != 150 {
		t.Errorf("intervalMS = %d, want clamped to 150", m.intervalMS)
	}
}

func TestModel_MouseSeek(t *testing.T) {
	m := loadedModel(t, 1000)
	m, _ = update(m, tea.WindowSizeMsg{Width: 104, Height: 30})

	m, _ = update(m, tea.MouseMsg{X: barIndent + 50, Y: barRow, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.frame != 500 {
		t.Errorf("frame = %d after clicking the middle of the bar, want 500", m.frame)
	}

	m, _ = update(m, tea.MouseMsg{X: barIndent + 10, Y: barRow + 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.frame != 500 {
		t.Errorf("click below the bar moved to frame %d", m.frame)
	}

	m, _ = update(m, tea.MouseMsg{X: barIndent + 99, Y: barRow, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.frame != 990 {
		t.Errorf("frame = %d after clicking the last column, want 990", m.frame)
	}
}

func TestModel_SaveAndReload(t *testing.T) {
	m := loadedModel(t, 100)
	m = press(m, "a", "right", "right", "right")

	m, cmd := update(m, keyPress("t"))
	if cmd == nil {
		t.Fatal("expected a save command")
	}
	if m.timeline.Recording() {
		t.Error("save did not finalize the active annotation")
	}

	msg := cmd()
	saved, ok := msg.(annotationsSavedMsg)
	if !ok {
		t.Fatalf("save returned %#v", msg)
	}
	m, _ = update(m, saved)
	if m.dirty {
		t.Error("model still dirty after save")
	}

	data, err := os.ReadFile(m.csvFile)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "start_frame,end_frame,type\n0,3,Upside Down\n" {
		t.Errorf("saved %q", data)
	}

	// A fresh session picks the file up after probing.
	fresh := newModel(config.Default(), m.logger, "flip.mp4", m.csvFile)
	fresh, cmd = update(fresh, videoProbedMsg{info: videoInfo{totalFrames: 100, fps: 30}})
	if cmd == nil {
		t.Fatal("expected the existing annotation file to be loaded")
	}
	fresh, _ = update(fresh, cmd())
	if got := fresh.timeline.Export(); !slices.Equal(got, m.timeline.Export()) {
		t.Errorf("reloaded %v, want %v", got, m.timeline.Export())
	}
}

func TestModel_RejectsInvalidAnnotations(t *testing.T) {
	m := loadedModel(t, 100)
	m = press(m, "a")

	m, _ = update(m, annotationsLoadedMsg{path: "bad.csv", rows: []timeline.Interval{
		{StartFrame: 0, EndFrame: 10, Label: "A"},
		{StartFrame: 5, EndFrame: 20, Label: "B"},
	}})

	if !strings.Contains(m.errorMsg, "overlaps") {
		t.Errorf("errorMsg = %q, want overlap report", m.errorMsg)
	}
	if !m.timeline.Recording() {
		t.Error("rejected load changed the timeline")
	}
}

func TestModel_QuitWithUnsavedChanges(t *testing.T) {
	m := loadedModel(t, 100)
	m = press(m, "a")

	m, cmd := update(m, keyPress("q"))
	if cmd != nil || m.quitting {
		t.Fatal("quit without confirmation while annotations are unsaved")
	}
	if !m.confirmQuit {
		t.Error("confirmQuit not set")
	}

	m, cmd = update(m, keyPress("q"))
	if cmd == nil || !m.quitting {
		t.Error("second q did not quit")
	}
}

func TestModel_ProbeFailure(t *testing.T) {
	m := testModel(t)
	m, _ = update(m, errorMsg{err: errors.New("failed to probe video: exit status 1")})

	if m.loading {
		t.Error("still loading after probe failure")
	}
	view := m.View()
	if !strings.Contains(view, "failed to probe video") || !strings.Contains(view, "Press 'q' to quit") {
		t.Errorf("View() = %q", view)
	}

	// Keys other than quit are ignored without a timeline.
	m = press(m, "a", "right")
	if m.timeline != nil || m.frame != 0 {
		t.Error("keys acted without a loaded video")
	}
}

func TestModel_View(t *testing.T) {
	m := loadedModel(t, 100)
	m = press(m, "shift+right", "s", "right", "right")

	view := m.View()
	for _, want := range []string{"flip.mp4", "frame 12/99", "Being flipped", "recording from frame 10 (3 frames)", "Video has 100 frames"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
	if lines := strings.Split(view, "\n"); !strings.Contains(lines[barRow], "┃") {
		t.Errorf("bar not on line %d: %q", barRow, lines[barRow])
	}
}

type quitModel struct{}

func (quitModel) Init() tea.Cmd                         { return tea.Quit }
func (q quitModel) Update(tea.Msg) (tea.Model, tea.Cmd) { return q, nil }
func (quitModel) View() string                          { return "" }

// The bar is addressed by View line, which only matches the mouse row when
// the program owns the whole screen.
func TestNewProgram_FullScreenWithMouse(t *testing.T) {
	var out bytes.Buffer
	p := newProgram(quitModel{}, tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutSignalHandler())
	if _, err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for name, seq := range map[string]string{
		"alt screen":        "\x1b[?1049h",
		"mouse cell motion": "\x1b[?1002h",
	} {
		if !strings.Contains(out.String(), seq) {
			t.Errorf("program did not enable %s (%q) in %q", name, seq, out.String())
		}
	}
}

func TestModel_ReloadConfirmation(t *testing.T) {
	m := loadedModel(t, 100)

	// Nothing to lose: reload right away.
	if _, cmd := update(m, keyPress("w")); cmd == nil {
		t.Fatal("reload of a clean timeline asked for confirmation")
	}

	m = press(m, "a", "right")
	m, cmd := update(m, keyPress("w"))
	if cmd != nil || !m.confirmLoad {
		t.Fatal("reload while recording did not ask for confirmation")
	}
	if !strings.Contains(m.errorMsg, "w again") {
		t.Errorf("errorMsg = %q", m.errorMsg)
	}

	// Any other key cancels the pending reload.
	m = press(m, "right")
	m, cmd = update(m, keyPress("w"))
	if cmd != nil {
		t.Error("reload went ahead after the confirmation was interrupted")
	}

	m, cmd = update(m, keyPress("w"))
	if cmd == nil {
		t.Error("second w did not reload")
	}
	if active, ok := m.timeline.Active(); !ok || active.EndFrame != 2 {
		t.Errorf("active = %v, %v, want recording untouched until the file loads", active, ok)
	}
}

func TestModel_ViewSaveState(t *testing.T) {
	m := loadedModel(t, 100)
	if view := m.View(); !strings.Contains(view, "saved") || strings.Contains(view, "unsaved") {
		t.Errorf("clean View() = %q, want saved", view)
	}

	m = press(m, "a")
	if view := m.View(); !strings.Contains(view, "unsaved") {
		t.Errorf("View() after labeling = %q, want unsaved", view)
	}
}
