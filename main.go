package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aschmelyun/tlabel/internal/annotations"
	"github.com/aschmelyun/tlabel/internal/config"
	"github.com/aschmelyun/tlabel/internal/projector"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

const VERSION = "1.0.0"

const maxStatuses = 4

var validExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".m4v"}

var cfg = config.Default()

type keyMap struct {
	Labels      []key.Binding
	Play        key.Binding
	Forward     key.Binding
	Back        key.Binding
	FastForward key.Binding
	FastBack    key.Binding
	Faster      key.Binding
	Slower      key.Binding
	Stop        key.Binding
	Save        key.Binding
	Load        key.Binding
	Preview     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func newKeyMap(labels []config.LabelConfig) keyMap {
	k := keyMap{
		Play:        key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Forward:     key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "next frame")),
		Back:        key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "previous frame")),
		FastForward: key.NewBinding(key.WithKeys("shift+right"), key.WithHelp("⇧→", "+10 frames")),
		FastBack:    key.NewBinding(key.WithKeys("shift+left"), key.WithHelp("⇧←", "-10 frames")),
		Faster:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower:      key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "slower")),
		Stop:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop label")),
		Save:        key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "save")),
		Load:        key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "load")),
		Preview:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
	for _, l := range labels {
		k.Labels = append(k.Labels, key.NewBinding(key.WithKeys(l.Key), key.WithHelp(l.Key, l.Name)))
	}
	return k
}

func (k keyMap) ShortHelp() []key.Binding {
	return append(slices.Clone(k.Labels), k.Play, k.Stop, k.Save, k.Help, k.Quit)
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		k.Labels,
		{k.Play, k.Forward, k.Back, k.FastForward, k.FastBack},
		{k.Faster, k.Slower, k.Preview},
		{k.Stop, k.Save, k.Load, k.Help, k.Quit},
	}
}

func newModel(c *config.Config, logger *slog.Logger, inputFile, csvFile string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return model{
		cfg:        c,
		logger:     logger,
		keys:       newKeyMap(c.Labels),
		help:       help.New(),
		spinner:    s,
		loading:    true,
		loadingMsg: "Reading frame count with ffprobe...",
		inputFile:  inputFile,
		csvFile:    csvFile,
		intervalMS: c.Playback.IntervalMS,
	}
}

func (m model) Init() tea.Cmd {
	if m.loading {
		return tea.Batch(
			m.spinner.Tick,
			probeVideoCmd(m.cfg.Tools.FFprobe, m.inputFile),
		)
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg), nil

	case tickMsg:
		if !m.playing || msg.id != m.tickID {
			return m, nil
		}
		if !m.step(1) {
			m.playing = false
			m.addStatus("Reached the end of the video.")
			return m, nil
		}
		return m, m.tick()

	case videoProbedMsg:
		m.info = msg.info
		m.timeline = timeline.New(msg.info.totalFrames)
		m.loading = false
		m.addStatus(fmt.Sprintf("Video has %d frames at %.2f fps.", msg.info.totalFrames, msg.info.fps))
		m.logger.Info("video probed", "file", m.inputFile, "frames", msg.info.totalFrames, "fps", msg.info.fps)

		if _, err := os.Stat(m.csvFile); err == nil {
			return m, loadAnnotationsCmd(m.csvFile)
		}
		return m, nil

	case annotationsLoadedMsg:
		if err := m.timeline.Load(msg.rows); err != nil {
			m.logger.Warn("annotations rejected", "file", msg.path, "error", err)
			m.errorMsg = err.Error()
			m.addStatus("Annotations in " + filepath.Base(msg.path) + " were not loaded.")
			return m, nil
		}
		m.dirty = false
		m.logger.Info("annotations loaded", "file", msg.path, "count", len(msg.rows))
		m.addStatus(fmt.Sprintf("Loaded %d annotations from %s.", len(msg.rows), filepath.Base(msg.path)))
		return m, nil

	case annotationsSavedMsg:
		m.dirty = false
		m.logger.Info("annotations saved", "file", msg.path, "count", msg.count)
		m.addStatus(fmt.Sprintf("Saved %d annotations to %s.", msg.count, msg.path))
		return m, nil

	case errorMsg:
		m.logger.Error("command failed", "error", msg.err)
		m.loading = false
		m.errorMsg = msg.err.Error()
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.dirty && !m.confirmQuit {
			m.confirmQuit = true
			m.errorMsg = "Annotations are not saved. Press q again to quit or t to save."
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	}
	m.confirmQuit = false
	confirmLoad := m.confirmLoad
	m.confirmLoad = false

	if m.loading || m.timeline == nil {
		return m, nil
	}
	m.errorMsg = ""

	if l, ok := m.cfg.LabelForKey(msg.String()); ok {
		m.apply(timeline.Begin{Label: timeline.Label(l.Name), Frame: m.frame})
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Play):
		return m.togglePlay()
	case key.Matches(msg, m.keys.Forward):
		m.step(1)
	case key.Matches(msg, m.keys.FastForward):
		m.step(10)
	case key.Matches(msg, m.keys.Back):
		m.seek(m.frame - 1)
	case key.Matches(msg, m.keys.FastBack):
		m.seek(m.frame - 10)
	case key.Matches(msg, m.keys.Faster):
		m.setInterval(m.intervalMS - m.cfg.Playback.StepMS)
	case key.Matches(msg, m.keys.Slower):
		m.setInterval(m.intervalMS + m.cfg.Playback.StepMS)
	case key.Matches(msg, m.keys.Stop):
		m.apply(timeline.Finalize{})
	case key.Matches(msg, m.keys.Save):
		m.apply(timeline.Finalize{})
		return m, saveAnnotationsCmd(m.csvFile, m.timeline.Export())
	case key.Matches(msg, m.keys.Load):
		m.playing = false
		if (m.dirty || m.timeline.Recording()) && !confirmLoad {
			m.confirmLoad = true
			m.errorMsg = "Reloading replaces unsaved annotations. Press w again to reload or t to save."
			return m, nil
		}
		return m, loadAnnotationsCmd(m.csvFile)
	case key.Matches(msg, m.keys.Preview):
		m.playing = false
		return m, previewFrameCmd(m.cfg.Tools.MPV, m.inputFile, m.frame, m.info.fps)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m model) handleMouse(msg tea.MouseMsg) model {
	if m.loading || m.timeline == nil {
		return m
	}
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft || msg.Y != barRow {
		return m
	}
	width := m.barWidth()
	x := msg.X - barIndent
	if x < 0 || x >= width {
		return m
	}
	m.seek(projector.PixelToFrame(x, width, m.timeline.TotalFrames()))
	return m
}

// apply hands a command to the timeline and reports a rejection in the
// error line.
func (m *model) apply(cmd timeline.Command) {
	_, finalize := cmd.(timeline.Finalize)
	changed := !finalize || m.timeline.Recording()

	if err := m.timeline.Apply(cmd); err != nil {
		m.logger.Warn("command rejected", "command", fmt.Sprintf("%T", cmd), "frame", m.frame, "error", err)
		m.errorMsg = describeError(err)
		return
	}
	if changed {
		m.dirty = true
		m.logger.Debug("command applied", "command", fmt.Sprintf("%+v", cmd), "frame", m.frame)
	}
}

func describeError(err error) string {
	if errors.Is(err, timeline.ErrBeforeActive) {
		return err.Error() + " (press x to stop it first)"
	}
	return err.Error()
}

// step moves forward like playback does, extending the active annotation.
// It reports false when already on the last frame.
func (m *model) step(n int) bool {
	next := min(m.frame+n, m.timeline.TotalFrames()-1)
	if next <= m.frame {
		return false
	}
	m.frame = next
	if m.timeline.Recording() {
		m.apply(timeline.Extend{Frame: next})
	}
	return true
}

// seek jumps without touching the active annotation.
func (m *model) seek(frame int) {
	m.frame = min(max(frame, 0), m.timeline.TotalFrames()-1)
}

func (m *model) setInterval(ms int) {
	p := m.cfg.Playback
	m.intervalMS = min(max(ms, p.MinIntervalMS), p.MaxIntervalMS)
}

func (m model) togglePlay() (tea.Model, tea.Cmd) {
	if m.playing {
		m.playing = false
		return m, nil
	}
	if m.frame >= m.timeline.TotalFrames()-1 {
		return m, nil
	}
	m.playing = true
	m.tickID++
	return m, m.tick()
}

func (m model) tick() tea.Cmd {
	id := m.tickID
	return tea.Tick(time.Duration(m.intervalMS)*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{id: id}
	})
}

func (m *model) addStatus(status string) {
	m.statuses = append(m.statuses, status)
	if len(m.statuses) > maxStatuses {
		m.statuses = m.statuses[len(m.statuses)-maxStatuses:]
	}
}

func (m model) barWidth() int {
	if m.width == 0 {
		return barWidth(80)
	}
	return barWidth(m.width)
}

func (m model) View() string {
	if m.quitting {
		return styleOutput(m.statuses)
	}

	if m.loading {
		loadingText := fmt.Sprintf("%s%s", m.spinner.View(), m.loadingMsg)
		if len(m.statuses) > 0 {
			return styleOutput(m.statuses) + loadingText
		}
		return loadingText
	}

	if m.timeline == nil {
		return styleOutput(append(slices.Clone(m.statuses), m.errorMsg)) + "\nPress 'q' to quit"
	}

	var b strings.Builder
	indent := strings.Repeat(" ", barIndent)
	styles := labelStyles(m.cfg)

	total := m.timeline.TotalFrames()
	state := "paused"
	if m.playing {
		state = "playing"
	}
	saved := SuccessStyle.Render("saved")
	if m.dirty {
		saved = ErrorStyle.Render("unsaved")
	}
	b.WriteString(indent + TitleStyle.Render(filepath.Base(m.inputFile)) +
		DimTextStyle.Render(fmt.Sprintf("  frame %d/%d", m.frame, total-1)) +
		TimestampStyle.Render(formatFrameTime(m.frame, m.info.fps)) +
		DimTextStyle.Render(fmt.Sprintf("  %s %dms  ", state, m.intervalMS)) + saved + "\n")

	width := m.barWidth()
	p := projector.Project(m.timeline.Export(), total, width, m.frame)
	b.WriteString(indent + renderBar(layoutBar(p, width), styles) + "\n")

	if active, ok := m.timeline.Active(); ok {
		b.WriteString(indent + styleFor(styles, active.Label).Render("● "+string(active.Label)) +
			DimTextStyle.Render(fmt.Sprintf("  recording from frame %d (%d frames)", active.StartFrame, active.Frames())) + "\n")
	} else if label, ok := m.timeline.LabelAt(m.frame); ok {
		b.WriteString(indent + styleFor(styles, label).Render("○ "+string(label)) + "\n")
	} else {
		b.WriteString(indent + DimTextStyle.Render("○ unlabeled") + "\n")
	}
	b.WriteString("\n")

	if len(m.statuses) > 0 {
		b.WriteString(styleOutput(m.statuses))
	}
	if m.errorMsg != "" {
		b.WriteString(BulletStyle.Render("└") + ErrorStyle.Render(m.errorMsg) + "\n")
	}
	b.WriteString("\n" + indent + m.help.View(m.keys))

	return b.String()
}

func newRootCmd() *cobra.Command {
	var configPath string
	var csvFile string

	cmd := &cobra.Command{
		Use:   "tlabel <video-file>",
		Short: "Label behavior in a video frame by frame",
		Long: `Step through a video and mark frame ranges with a behavior label.

Annotations are saved next to the video as <name>.csv with the columns
start_frame,end_frame,type.`,
		Version:       VERSION,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(args[0], csvFile)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/tlabel/config.toml)")
	cmd.Flags().StringVar(&csvFile, "csv", "", "annotation file (default: video path with .csv)")
	cmd.SetUsageFunc(printUsage)

	cmd.AddCommand(newCheckCmd(), newRenderCmd(), newCutCmd())
	return cmd
}

func printUsage(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, BulletStyle.Render("├")+TextStyle.Render("Usage: "+cmd.UseLine()))

	if subs := cmd.Commands(); len(subs) > 0 {
		fmt.Fprintln(w, BulletStyle.Render("│"))
		fmt.Fprintln(w, BulletStyle.Render("├")+TextStyle.Render("Commands:"))
		for _, sub := range subs {
			if !sub.IsAvailableCommand() {
				continue
			}
			spaces := strings.Repeat(" ", max(1, 10-len(sub.Name())))
			fmt.Fprintln(w, BulletStyle.Render("├────")+TextStyle.Render(sub.Name())+DimTextStyle.Render(spaces+sub.Short))
		}
	}

	if flags := cmd.LocalFlags().FlagUsages(); flags != "" {
		fmt.Fprintln(w, BulletStyle.Render("│"))
		fmt.Fprintln(w, BulletStyle.Render("├")+TextStyle.Render("Options:"))
		for _, line := range strings.Split(strings.TrimRight(flags, "\n"), "\n") {
			fmt.Fprintln(w, BulletStyle.Render("├──")+DimTextStyle.Render(line))
		}
	}

	fmt.Fprintln(w, BulletStyle.Render("│"))
	fmt.Fprintln(w, BulletStyle.Render("├")+TextStyle.Render("Requirements:"))
	for _, dependency := range []string{cfg.Tools.FFprobe, cfg.Tools.FFmpeg, cfg.Tools.MPV} {
		status := "✔ installed"
		if !checkDependency(dependency) {
			status = "✗ missing"
		}
		spaces := strings.Repeat(" ", max(1, 10-len(dependency)))
		fmt.Fprintln(w, BulletStyle.Render("├────")+TextStyle.Render(dependency)+DimTextStyle.Render(spaces+status))
	}

	fmt.Fprintln(w, BulletStyle.Render("│"))
	fmt.Fprintln(w, BulletStyle.Render("└")+TextStyle.Render("Supported formats:")+DimTextStyle.Render(" "+strings.Join(validExtensions, ", ")))
	return nil
}

func runAnnotate(inputFile, csvFile string) error {
	fmt.Println(BulletStyle.Render("┌") + TitleStyle.Render("tlabel"))

	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("file '%s' does not exist", inputFile)
	}
	if !slices.Contains(validExtensions, strings.ToLower(filepath.Ext(inputFile))) {
		return fmt.Errorf("file '%s' is not a valid video file", inputFile)
	}
	if !checkDependency(cfg.Tools.FFprobe) {
		return fmt.Errorf("%s is required to read the frame count", cfg.Tools.FFprobe)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("annotating needs an interactive terminal")
	}

	if csvFile == "" {
		csvFile = annotations.DefaultPath(inputFile)
	}

	logger, closeLog, err := newLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("starting annotator", "video", inputFile, "annotations", csvFile)

	final, err := newProgram(newModel(cfg, logger, inputFile, csvFile)).Run()
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	if m, ok := final.(model); ok && len(m.statuses) > 0 {
		fmt.Print(styleOutput(m.statuses))
	}
	return nil
}

// newProgram runs m full screen so that mouse rows match View lines.
func newProgram(m tea.Model, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)...)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, BulletStyle.Render("└")+ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
