package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aschmelyun/tlabel/internal/annotations"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

func probeVideoCmd(ffprobe, inputFile string) tea.Cmd {
	return func() tea.Msg {
		info, err := probeVideo(ffprobe, inputFile)
		if err != nil {
			return errorMsg{err: err}
		}
		return videoProbedMsg{info: info}
	}
}

func loadAnnotationsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		rows, err := annotations.Open(path)
		if err != nil {
			return errorMsg{err: fmt.Errorf("failed to load annotations: %w", err)}
		}
		return annotationsLoadedMsg{path: path, rows: rows}
	}
}

func saveAnnotationsCmd(path string, rows []timeline.Interval) tea.Cmd {
	return func() tea.Msg {
		if err := annotations.Save(path, rows); err != nil {
			return errorMsg{err: fmt.Errorf("failed to save annotations: %w", err)}
		}
		return annotationsSavedMsg{path: path, count: len(rows)}
	}
}

func previewFrameCmd(mpv, inputFile string, frame int, fps float64) tea.Cmd {
	return func() tea.Msg {
		if err := previewFrame(mpv, inputFile, frame, fps); err != nil {
			return errorMsg{err: err}
		}
		return nil
	}
}

// probeVideo asks ffprobe for the frame count and frame rate of the first
// video stream. Containers that do not record a frame count are counted
// packet by packet, which reads the whole file.
func probeVideo(ffprobe, inputFile string) (videoInfo, error) {
	out, err := runProbe(ffprobe, "-show_entries", "stream=nb_frames,r_frame_rate", inputFile)
	if err != nil {
		return videoInfo{}, err
	}
	info, err := parseProbeOutput(out)
	if err == nil {
		return info, nil
	}

	out, err = runProbe(ffprobe, "-count_packets", "-show_entries", "stream=nb_read_packets,r_frame_rate", inputFile)
	if err != nil {
		return videoInfo{}, err
	}
	return parseProbeOutput(out)
}

func runProbe(ffprobe string, args ...string) (string, error) {
	base := []string{"-v", "error", "-select_streams", "v:0", "-of", "default=noprint_wrappers=1"}
	cmd := exec.Command(ffprobe, append(base, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to probe video: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// parseProbeOutput reads key=value lines printed by ffprobe.
func parseProbeOutput(out string) (videoInfo, error) {
	var info videoInfo
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "nb_frames", "nb_read_packets":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				info.totalFrames = n
			}
		case "r_frame_rate":
			info.fps = parseRate(value)
		}
	}
	if info.totalFrames == 0 {
		return videoInfo{}, fmt.Errorf("could not determine frame count")
	}
	return info, nil
}

// parseRate parses an ffprobe rational such as 30000/1001.
func parseRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func previewFrame(mpv, inputFile string, frame int, fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("cannot preview: unknown frame rate")
	}
	start := float64(frame) / fps
	cmd := exec.Command(mpv, fmt.Sprintf("--start=%.3f", start), "--pause", "--keep-open=yes", inputFile)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", mpv, err)
	}
	go cmd.Wait()
	return nil
}

// formatFrameTime renders a frame as MM:SS.XX at the given frame rate.
func formatFrameTime(frame int, fps float64) string {
	if fps <= 0 {
		return "--:--.--"
	}
	seconds := float64(frame) / fps
	minutes := int(seconds) / 60
	return fmt.Sprintf("%02d:%05.2f", minutes, seconds-float64(minutes*60))
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// selectFilter builds an ffmpeg select expression matching every frame of
// the given intervals.
func selectFilter(rows []timeline.Interval) string {
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("between(n,%d,%d)", r.StartFrame, r.EndFrame))
	}
	return strings.Join(parts, "+")
}

// audioSelectFilter is selectFilter in seconds, for aselect which has no
// frame numbers.
func audioSelectFilter(rows []timeline.Interval, fps float64) string {
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		start := float64(r.StartFrame) / fps
		end := float64(r.EndFrame+1) / fps
		parts = append(parts, fmt.Sprintf("between(t,%.3f,%.3f)", start, end))
	}
	return strings.Join(parts, "+")
}

func labelRows(rows []timeline.Interval, label timeline.Label) []timeline.Interval {
	var out []timeline.Interval
	for _, r := range rows {
		if r.Label == label {
			out = append(out, r)
		}
	}
	return out
}

// clipPath names the clip for label next to the input file.
func clipPath(inputFile string, label timeline.Label) string {
	basename := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	slug := strings.Trim(strings.ToLower(unsafeFileChars.ReplaceAllString(string(label), "_")), "_")
	return filepath.Join(filepath.Dir(inputFile), fmt.Sprintf("%s_%s.mp4", basename, slug))
}

// compileLabelClip concatenates every interval of label into one clip.
func compileLabelClip(ffmpeg, inputFile string, rows []timeline.Interval, label timeline.Label, fps float64) (string, error) {
	segments := labelRows(rows, label)
	if len(segments) == 0 {
		return "", fmt.Errorf("no intervals labeled %q", label)
	}
	if fps <= 0 {
		return "", fmt.Errorf("unknown frame rate")
	}

	outputFile := clipPath(inputFile, label)

	cmd := exec.Command(
		ffmpeg,
		"-y",
		"-i",
		inputFile,
		"-vf",
		fmt.Sprintf("select='%s',setpts=N/FRAME_RATE/TB", selectFilter(segments)),
		"-af",
		fmt.Sprintf("aselect='%s',asetpts=N/SR/TB", audioSelectFilter(segments, fps)),
		outputFile,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to compile clip: %w: %s", err, lastLine(stderr.String()))
	}

	return outputFile, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func styleOutput(statuses []string) string {
	var styledStatuses []string
	for i, status := range statuses {
		bullet := "├"
		if i == len(statuses)-1 {
			bullet = "└"
		}
		styledStatuses = append(styledStatuses, BulletStyle.Render(bullet)+TextStyle.Render(status))
	}
	return strings.Join(styledStatuses, "\n") + "\n"
}

func checkDependency(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// newLogger writes text logs to path, or nowhere when path is empty. The
// returned close func is always safe to call.
func newLogger(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f.Close, nil
}
