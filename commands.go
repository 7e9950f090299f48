package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/aschmelyun/tlabel/internal/annotations"
	"github.com/aschmelyun/tlabel/internal/projector"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

type intervalRecord struct {
	StartFrame int    `yaml:"start_frame"`
	EndFrame   int    `yaml:"end_frame"`
	Type       string `yaml:"type"`
}

type checkReport struct {
	File          string           `yaml:"file"`
	TotalFrames   int              `yaml:"total_frames,omitempty"`
	Intervals     []intervalRecord `yaml:"intervals"`
	FramesByLabel map[string]int   `yaml:"frames_by_label"`
}

func newCheckCmd() *cobra.Command {
	var frames int
	var format string

	cmd := &cobra.Command{
		Use:   "check <annotations.csv>",
		Short: "Validate an annotation file",
		Long: `Validate an annotation file and list its intervals.

Fails when intervals overlap, run backwards, or (with --frames) fall past the
end of the video.

Examples:
  tlabel check flip.csv
  tlabel check flip.csv --frames 5400 --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), args[0], frames, format)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 0, "frame count of the video (enables range checks)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or yaml")

	return cmd
}

func runCheck(w io.Writer, path string, frames int, format string) error {
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unknown format %q (use text or yaml)", format)
	}

	rows, err := loadChecked(path, frames)
	if err != nil {
		return err
	}

	if format == "yaml" {
		report := checkReport{
			File:          path,
			TotalFrames:   frames,
			Intervals:     make([]intervalRecord, 0, len(rows)),
			FramesByLabel: make(map[string]int),
		}
		for _, r := range rows {
			report.Intervals = append(report.Intervals, intervalRecord{StartFrame: r.StartFrame, EndFrame: r.EndFrame, Type: string(r.Label)})
			report.FramesByLabel[string(r.Label)] += r.Frames()
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	}

	statuses := []string{fmt.Sprintf("%s: %d intervals, no overlaps", path, len(rows))}
	for _, r := range rows {
		statuses = append(statuses, fmt.Sprintf("%6d - %-6d %s", r.StartFrame, r.EndFrame, r.Label))
	}
	fmt.Fprint(w, styleOutput(statuses))
	return nil
}

// loadChecked reads path and runs it through a timeline of frames frames,
// returning the intervals sorted by start.
func loadChecked(path string, frames int) ([]timeline.Interval, error) {
	rows, err := annotations.Open(path)
	if err != nil {
		return nil, err
	}
	tl := timeline.New(frames)
	if err := tl.Load(rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tl.Export(), nil
}

func newRenderCmd() *cobra.Command {
	var frames, width, current int
	var color string

	cmd := &cobra.Command{
		Use:   "render <annotations.csv>",
		Short: "Print the timeline bar of an annotation file",
		Long: `Print the timeline bar of an annotation file, one column per pixel.

Examples:
  tlabel render flip.csv
  tlabel render flip.csv --frames 5400 --width 120 --frame 300`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if width <= 0 {
				width = terminalBarWidth()
			}
			if err := setColorMode(color); err != nil {
				return err
			}
			return runRender(cmd.OutOrStdout(), args[0], frames, width, current)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 0, "frame count of the video (default: last annotated frame + 1)")
	cmd.Flags().IntVar(&width, "width", 0, "bar width in columns (default: terminal width)")
	cmd.Flags().IntVar(&current, "frame", 0, "frame to mark on the bar")
	cmd.Flags().StringVar(&color, "color", "auto", "color output: auto, always or never")

	return cmd
}

func terminalBarWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return barWidth(w)
	}
	return barWidth(80)
}

func setColorMode(mode string) error {
	switch mode {
	case "auto":
		if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	case "always":
		lipgloss.SetColorProfile(termenv.TrueColor)
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		return fmt.Errorf("unknown color mode %q (use auto, always or never)", mode)
	}
	return nil
}

func runRender(w io.Writer, path string, frames, width, current int) error {
	rows, err := loadChecked(path, frames)
	if err != nil {
		return err
	}
	if frames <= 0 {
		for _, r := range rows {
			frames = max(frames, r.EndFrame+1)
		}
	}

	styles := labelStyles(cfg)
	p := projector.Project(rows, frames, width, current)
	fmt.Fprintln(w, renderBar(layoutBar(p, width), styles))

	counts := make(map[timeline.Label]int)
	var labels []timeline.Label
	for _, r := range rows {
		if _, seen := counts[r.Label]; !seen {
			labels = append(labels, r.Label)
		}
		counts[r.Label] += r.Frames()
	}
	slices.Sort(labels)

	legend := make([]string, 0, len(labels))
	for _, l := range labels {
		legend = append(legend, styleFor(styles, l).Render("█")+" "+fmt.Sprintf("%s (%d frames)", l, counts[l]))
	}
	fmt.Fprintln(w, strings.Join(legend, "  "))
	return nil
}

func newCutCmd() *cobra.Command {
	var csvFile string
	var label string

	cmd := &cobra.Command{
		Use:   "cut <video-file>",
		Short: "Export every interval of one label as a clip",
		Long: `Concatenate every interval with the given label into a single clip next to
the video, named <video>_<label>.mp4.

Examples:
  tlabel cut flip.mp4 --label "Upside Down"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCut(cmd.OutOrStdout(), args[0], csvFile, label)
		},
	}

	cmd.Flags().StringVar(&csvFile, "csv", "", "annotation file (default: video path with .csv)")
	cmd.Flags().StringVar(&label, "label", "", "label to export")
	cmd.MarkFlagRequired("label")

	return cmd
}

func runCut(w io.Writer, inputFile, csvFile, label string) error {
	for _, dependency := range []string{cfg.Tools.FFprobe, cfg.Tools.FFmpeg} {
		if !checkDependency(dependency) {
			return fmt.Errorf("%s is required to cut clips", dependency)
		}
	}
	if csvFile == "" {
		csvFile = annotations.DefaultPath(inputFile)
	}

	info, err := probeVideo(cfg.Tools.FFprobe, inputFile)
	if err != nil {
		return err
	}
	rows, err := loadChecked(csvFile, info.totalFrames)
	if err != nil {
		return err
	}

	statuses := []string{fmt.Sprintf("Cutting %d intervals labeled %q with ffmpeg...", len(labelRows(rows, timeline.Label(label))), label)}
	fmt.Fprint(w, styleOutput(statuses))

	outputFile, err := compileLabelClip(cfg.Tools.FFmpeg, inputFile, rows, timeline.Label(label), info.fps)
	if err != nil {
		return err
	}
	fmt.Fprint(w, styleOutput([]string{"Saved output to " + outputFile}))
	return nil
}
