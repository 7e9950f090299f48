package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the main configuration
type Config struct {
	Labels   []LabelConfig  `toml:"labels"`
	Playback PlaybackConfig `toml:"playback"`
	Tools    ToolsConfig    `toml:"tools"`
	LogFile  string         `toml:"log_file"` // slog output; empty discards logs
}

// LabelConfig binds an annotation label to a hotkey and a timeline color.
type LabelConfig struct {
	Name  string `toml:"name"`
	Key   string `toml:"key"`
	Color string `toml:"color"` // hex (#1E88E5) or ANSI index
}

// PlaybackConfig controls the frame timer. Intervals are milliseconds per frame.
type PlaybackConfig struct {
	IntervalMS    int `toml:"interval_ms"`
	MinIntervalMS int `toml:"min_interval_ms"`
	MaxIntervalMS int `toml:"max_interval_ms"`
	StepMS        int `toml:"step_ms"` // change per speed keypress
}

// ToolsConfig names the external binaries used for probing, previewing and cutting.
type ToolsConfig struct {
	FFprobe string `toml:"ffprobe"`
	FFmpeg  string `toml:"ffmpeg"`
	MPV     string `toml:"mpv"`
}

// ReservedKeys are bound by the annotator and cannot be used for labels.
var ReservedKeys = map[string]bool{
	" ":           true,
	"left":        true,
	"right":       true,
	"shift+left":  true,
	"shift+right": true,
	"+":           true,
	"=":           true,
	"-":           true,
	"x":           true,
	"t":           true,
	"w":           true,
	"p":           true,
	"q":           true,
	"?":           true,
	"ctrl+c":      true,
}

// DefaultLabels returns the flip assay labels and their colors.
func DefaultLabels() []LabelConfig {
	return []LabelConfig{
		{Name: "Upside Down", Key: "a", Color: "#1E88E5"},
		{Name: "Being flipped", Key: "s", Color: "#FFA500"},
		{Name: "Right Side Up", Key: "d", Color: "#004D40"},
	}
}

// DefaultPlaybackConfig mirrors the speed slider of the original tool: 75ms
// per frame, adjustable between 1 and 150.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		IntervalMS:    75,
		MinIntervalMS: 1,
		MaxIntervalMS: 150,
		StepMS:        10,
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Labels:   DefaultLabels(),
		Playback: DefaultPlaybackConfig(),
		Tools: ToolsConfig{
			FFprobe: "ffprobe",
			FFmpeg:  "ffmpeg",
			MPV:     "mpv",
		},
	}
}

// DefaultPath returns the default config file path
func DefaultPath() string {
	if env := os.Getenv("TLABEL_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tlabel", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "tlabel", "config.toml")
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Load reads the config at path (DefaultPath when empty) over the defaults,
// then applies .env and environment overrides. Precedence is
// Env > .env > TOML > Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		// A [[labels]] table replaces the defaults rather than appending.
		cfg.Labels = nil
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		if len(cfg.Labels) == 0 {
			cfg.Labels = DefaultLabels()
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadDotEnv exports the variables in path without overriding ones already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TLABEL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Playback.IntervalMS = ms
		}
	}
	if v := os.Getenv("TLABEL_FFPROBE"); v != "" {
		cfg.Tools.FFprobe = v
	}
	if v := os.Getenv("TLABEL_FFMPEG"); v != "" {
		cfg.Tools.FFmpeg = v
	}
	if v := os.Getenv("TLABEL_MPV"); v != "" {
		cfg.Tools.MPV = v
	}
	if v := os.Getenv("TLABEL_LOG_FILE"); v != "" {
		cfg.LogFile = ExpandHome(v)
	}
}

// Validate checks labels and playback bounds.
func (c *Config) Validate() error {
	if len(c.Labels) == 0 {
		return fmt.Errorf("at least one label is required")
	}

	names := make(map[string]bool, len(c.Labels))
	keys := make(map[string]string, len(c.Labels))
	for i, l := range c.Labels {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("labels[%d]: name is required", i)
		}
		if strings.TrimSpace(l.Name) != l.Name {
			return fmt.Errorf("label %q: name has leading or trailing whitespace", l.Name)
		}
		if names[l.Name] {
			return fmt.Errorf("duplicate label %q", l.Name)
		}
		names[l.Name] = true

		if l.Key == "" {
			return fmt.Errorf("label %q: key is required", l.Name)
		}
		if ReservedKeys[l.Key] {
			return fmt.Errorf("label %q: key %q is reserved", l.Name, l.Key)
		}
		if other, ok := keys[l.Key]; ok {
			return fmt.Errorf("labels %q and %q share key %q", other, l.Name, l.Key)
		}
		keys[l.Key] = l.Name
	}

	p := c.Playback
	if p.MinIntervalMS < 1 {
		return fmt.Errorf("playback.min_interval_ms must be at least 1, got %d", p.MinIntervalMS)
	}
	if p.MaxIntervalMS < p.MinIntervalMS {
		return fmt.Errorf("playback.max_interval_ms (%d) is below min_interval_ms (%d)", p.MaxIntervalMS, p.MinIntervalMS)
	}
	if p.IntervalMS < p.MinIntervalMS || p.IntervalMS > p.MaxIntervalMS {
		return fmt.Errorf("playback.interval_ms %d is outside [%d, %d]", p.IntervalMS, p.MinIntervalMS, p.MaxIntervalMS)
	}
	if p.StepMS < 1 {
		return fmt.Errorf("playback.step_ms must be at least 1, got %d", p.StepMS)
	}
	return nil
}

// LabelForKey returns the label bound to key.
func (c *Config) LabelForKey(key string) (LabelConfig, bool) {
	for _, l := range c.Labels {
		if l.Key == key {
			return l, true
		}
	}
	return LabelConfig{}, false
}
