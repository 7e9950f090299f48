package main

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"

	"github.com/aschmelyun/tlabel/internal/config"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

type videoProbedMsg struct {
	info videoInfo
}

type annotationsLoadedMsg struct {
	path string
	rows []timeline.Interval
}

type annotationsSavedMsg struct {
	path  string
	count int
}

type tickMsg struct {
	id int
}

type errorMsg struct {
	err error
}

type videoInfo struct {
	totalFrames int
	fps         float64
}

type model struct {
	cfg     *config.Config
	logger  *slog.Logger
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	loading    bool
	loadingMsg string
	quitting   bool
	errorMsg   string
	statuses   []string

	inputFile string
	csvFile   string
	info      videoInfo
	timeline  *timeline.Timeline

	frame       int
	playing     bool
	tickID      int
	intervalMS  int
	width       int
	dirty       bool
	confirmQuit bool
	confirmLoad bool
}

// barCell is one terminal column of the timeline bar.
type barCell struct {
	label  timeline.Label
	filled bool
	marker bool
}
