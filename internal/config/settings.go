package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Settings is the on-disk form of the folder set.
type Settings struct {
	Target  TargetSettings   `toml:"target"`
	Sources []SourceSettings `toml:"source"`
}

type TargetSettings struct {
	Path string `toml:"path"`
}

// SourceSettings sets the cadence either as whole seconds or as a cron
// descriptor such as "@every 1h30m" or "@daily".
type SourceSettings struct {
	Path      string `toml:"path"`
	Frequency int    `toml:"frequency,omitempty"`
	Every     string `toml:"every,omitempty"`
}

// everyReference anchors schedules that are not constant delays so the derived
// period does not depend on when the settings were loaded.
var everyReference = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Load reads a settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	var s Settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the settings file through a temp file and a rename.
func Save(path string, s *Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// RunConfig converts the settings into the ordered folder list, resolving
// absolute paths and frequencies. It does not touch the filesystem; use
// Validate for that.
func (s *Settings) RunConfig() (*RunConfig, error) {
	if s.Target.Path == "" {
		return nil, errors.New("target path is required")
	}
	target, err := filepath.Abs(s.Target.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid target path %q: %w", s.Target.Path, err)
	}

	cfg := &RunConfig{Folders: []Folder{{Path: target, Role: Target}}}
	for i, src := range s.Sources {
		if src.Path == "" {
			return nil, fmt.Errorf("source %d: path is required", i+1)
		}
		path, err := filepath.Abs(src.Path)
		if err != nil {
			return nil, fmt.Errorf("source %d: invalid path %q: %w", i+1, src.Path, err)
		}

		frequency := src.Frequency
		if src.Every != "" {
			if frequency != 0 {
				return nil, fmt.Errorf("source %s: set either frequency or every, not both", src.Path)
			}
			frequency, err = ParseEvery(src.Every)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Path, err)
			}
		}

		cfg.Folders = append(cfg.Folders, Folder{Path: path, Role: Source, Frequency: frequency})
	}
	return cfg, nil
}

// ParseEvery turns a cron descriptor into a period in whole seconds (minimum 1).
// Constant delays ("@every 90s") use their delay; other schedules use the gap
// between two consecutive activations.
func ParseEvery(spec string) (int, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	var period time.Duration
	switch s := schedule.(type) {
	case cron.ConstantDelaySchedule:
		period = s.Delay
	default:
		first := s.Next(everyReference)
		period = s.Next(first).Sub(first)
	}

	seconds := int(period / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds, nil
}

// FromRunConfig builds settings back from a folder list.
func FromRunConfig(cfg *RunConfig) *Settings {
	s := &Settings{Target: TargetSettings{Path: cfg.Target().Path}}
	for _, f := range cfg.Sources() {
		s.Sources = append(s.Sources, SourceSettings{Path: f.Path, Frequency: f.Frequency})
	}
	return s
}
