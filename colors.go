package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aschmelyun/tlabel/internal/config"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	BulletStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingRight(1)
	TextStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	DimTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	SpinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	TimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(2)
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	SuccessStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	EmptyBarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	MarkerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D81B60"))
	UnknownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0"))
)

// labelStyles maps every configured label to a style in its color. Labels
// not in the config render with UnknownStyle.
func labelStyles(cfg *config.Config) map[timeline.Label]lipgloss.Style {
	styles := make(map[timeline.Label]lipgloss.Style, len(cfg.Labels))
	for _, l := range cfg.Labels {
		styles[timeline.Label(l.Name)] = lipgloss.NewStyle().Foreground(lipgloss.Color(l.Color))
	}
	return styles
}

func styleFor(styles map[timeline.Label]lipgloss.Style, label timeline.Label) lipgloss.Style {
	if s, ok := styles[label]; ok {
		return s
	}
	return UnknownStyle
}
