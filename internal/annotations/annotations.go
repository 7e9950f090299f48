// Package annotations reads and writes the annotation table: a CSV file with
// one start_frame,end_frame,type row per interval.
package annotations

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aschmelyun/tlabel/internal/timeline"
)

const (
	ColStart = "start_frame"
	ColEnd   = "end_frame"
	ColType  = "type"
)

// Header is the first row of every annotation file.
var Header = []string{ColStart, ColEnd, ColType}

// Write encodes rows as CSV, header first.
func Write(w io.Writer, rows []timeline.Interval) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.StartFrame),
			strconv.Itoa(r.EndFrame),
			string(r.Label),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read decodes an annotation table. Columns are found by header name, so
// files with reordered or extra columns are accepted.
func Read(r io.Reader) ([]timeline.Interval, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, name := range Header {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []timeline.Interval
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if isBlank(record) {
			continue
		}

		row, err := parseRow(record, cols)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(record []string, cols map[string]int) (timeline.Interval, error) {
	// Labels are kept byte for byte; only the frame columns are trimmed.
	field := func(name string) string {
		if i := cols[name]; i < len(record) {
			return record[i]
		}
		return ""
	}

	start, err := strconv.Atoi(strings.TrimSpace(field(ColStart)))
	if err != nil {
		return timeline.Interval{}, fmt.Errorf("invalid %s %q", ColStart, field(ColStart))
	}
	end, err := strconv.Atoi(strings.TrimSpace(field(ColEnd)))
	if err != nil {
		return timeline.Interval{}, fmt.Errorf("invalid %s %q", ColEnd, field(ColEnd))
	}
	label := field(ColType)
	if label == "" {
		return timeline.Interval{}, fmt.Errorf("empty %s", ColType)
	}

	return timeline.Interval{StartFrame: start, EndFrame: end, Label: timeline.Label(label)}, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Open reads the annotation table at path.
func Open(path string) ([]timeline.Interval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Save writes rows to path through a temporary file in the same directory,
// so a crash never leaves a half written table behind.
func Save(path string, rows []timeline.Interval) error {
	var buf bytes.Buffer
	if err := Write(&buf, rows); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tlabel-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write annotations: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync annotations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to save annotations: %w", err)
	}

	success = true
	return nil
}

// DefaultPath returns the annotation file that belongs to videoFile: the
// same path with a .csv extension.
func DefaultPath(videoFile string) string {
	return strings.TrimSuffix(videoFile, filepath.Ext(videoFile)) + ".csv"
}
