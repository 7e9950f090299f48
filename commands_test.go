package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"github.com/aschmelyun/tlabel/internal/timeline"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flip.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const twoHalves = "start_frame,end_frame,type\n5,9,B\n0,4,A\n"

func TestRunCheck_Text(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	path := writeCSV(t, twoHalves)

	var out bytes.Buffer
	if err := runCheck(&out, path, 0, "text"); err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "2 intervals, no overlaps") {
		t.Errorf("summary = %q", lines[0])
	}
	if !strings.Contains(lines[1], "0 - 4") || !strings.HasSuffix(lines[1], "A") {
		t.Errorf("first interval line = %q, want the earliest interval", lines[1])
	}
}

func TestRunCheck_YAML(t *testing.T) {
	path := writeCSV(t, twoHalves+"10,19,A\n")

	var out bytes.Buffer
	if err := runCheck(&out, path, 20, "yaml"); err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}

	var report checkReport
	if err := yaml.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, out.String())
	}
	if report.File != path || report.TotalFrames != 20 {
		t.Errorf("report header = %q, %d", report.File, report.TotalFrames)
	}
	want := []intervalRecord{
		{StartFrame: 0, EndFrame: 4, Type: "A"},
		{StartFrame: 5, EndFrame: 9, Type: "B"},
		{StartFrame: 10, EndFrame: 19, Type: "A"},
	}
	if len(report.Intervals) != len(want) {
		t.Fatalf("intervals = %v, want %v", report.Intervals, want)
	}
	for i := range want {
		if report.Intervals[i] != want[i] {
			t.Errorf("intervals[%d] = %v, want %v", i, report.Intervals[i], want[i])
		}
	}
	if report.FramesByLabel["A"] != 15 || report.FramesByLabel["B"] != 5 {
		t.Errorf("frames_by_label = %v", report.FramesByLabel)
	}
}

func TestRunCheck_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		frames  int
		format  string
		wantErr error
	}{
		{"overlap", "start_frame,end_frame,type\n0,10,A\n5,20,B\n", 0, "text", timeline.ErrInvalidLoad},
		{"past the end", twoHalves, 8, "text", timeline.ErrInvalidLoad},
		{"backwards", "start_frame,end_frame,type\n9,3,A\n", 0, "yaml", timeline.ErrInvalidLoad},
		{"unknown format", twoHalves, 0, "json", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tt.content)
			var out bytes.Buffer
			err := runCheck(&out, path, tt.frames, tt.format)
			if err == nil {
				t.Fatal("runCheck() succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("runCheck() error = %v, want %v", err, tt.wantErr)
			}
			if out.Len() != 0 {
				t.Errorf("wrote output on failure: %q", out.String())
			}
		})
	}
}

func TestRunCheck_MissingFile(t *testing.T) {
	err := runCheck(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing.csv"), 0, "text")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("runCheck() error = %v, want not-exist", err)
	}
}

func TestRunRender(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	path := writeCSV(t, twoHalves)

	var out bytes.Buffer
	if err := runRender(&out, path, 0, 10, 0); err != nil {
		t.Fatalf("runRender() error = %v", err)
	}

	want := "┃█████████\n█ A (5 frames)  █ B (5 frames)\n"
	if out.String() != want {
		t.Errorf("runRender() = %q, want %q", out.String(), want)
	}
}

func TestRunRender_MarkerAndGap(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	path := writeCSV(t, "start_frame,end_frame,type\n0,4,A\n")

	var out bytes.Buffer
	if err := runRender(&out, path, 20, 10, 19); err != nil {
		t.Fatalf("runRender() error = %v", err)
	}

	bar, _, _ := strings.Cut(out.String(), "\n")
	if bar != "██░░░░░░░┃" {
		t.Errorf("bar = %q", bar)
	}
}

func TestSetColorMode(t *testing.T) {
	for _, mode := range []string{"auto", "always", "never"} {
		if err := setColorMode(mode); err != nil {
			t.Errorf("setColorMode(%q) = %v", mode, err)
		}
	}
	if err := setColorMode("sometimes"); err == nil {
		t.Error("expected an error for an unknown color mode")
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}
