package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MinRecommendedFrequency is the shortest cadence that does not trigger a warning.
const MinRecommendedFrequency = 60

// ValidationError collects every problem found in a folder set.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid folders: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks the invariants the scheduler relies on: exactly one target
// at index 0, at least one source, readable source directories, a target that
// exists or can be created, unique paths and names, and positive frequencies.
func Validate(cfg *RunConfig) error {
	verr := &ValidationError{}

	if cfg == nil || len(cfg.Folders) < 2 {
		verr.add("at least one target and one source folder are required")
		return verr
	}

	targets := 0
	for _, f := range cfg.Folders {
		if f.Role == Target {
			targets++
		}
	}
	if targets != 1 {
		verr.add("exactly one target folder is required, found %d", targets)
	}
	if cfg.Folders[0].Role != Target {
		verr.add("the first folder must be the target")
	}

	paths := make(map[string]bool)
	names := make(map[string]string)
	for i, f := range cfg.Folders {
		if f.Path == "" {
			verr.add("folder %d has an empty path", i)
			continue
		}
		if !filepath.IsAbs(f.Path) {
			verr.add("folder path must be absolute: %s", f.Path)
		}

		clean := filepath.Clean(f.Path)
		if paths[clean] {
			verr.add("folders can't have equal paths: %s", f.Path)
		}
		paths[clean] = true

		switch f.Role {
		case Target:
			if err := checkCreatable(clean); err != nil {
				verr.add("can't create folder with this path: %s (%v)", f.Path, err)
			}
		case Source:
			if f.Frequency < 1 {
				verr.add("frequency of %s must be at least 1 second", f.Path)
			}
			if err := checkReadable(clean); err != nil {
				verr.add("can't read folder %s: %v", f.Path, err)
			}
			if other, ok := names[f.Name()]; ok {
				verr.add("source folders %s and %s share the name %q", other, f.Path, f.Name())
			}
			names[f.Name()] = f.Path
		default:
			verr.add("folder %s has unknown role %q", f.Path, f.Role)
		}
	}

	target := filepath.Clean(cfg.Folders[0].Path)
	for _, f := range cfg.Sources() {
		if f.Path != "" && within(target, filepath.Clean(f.Path)) {
			verr.add("target %s is inside source %s", cfg.Folders[0].Path, f.Path)
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// Warnings returns non-fatal remarks about a folder set.
func Warnings(cfg *RunConfig) []string {
	var warnings []string
	for _, f := range cfg.Sources() {
		if f.Frequency < MinRecommendedFrequency {
			warnings = append(warnings, fmt.Sprintf("frequency of %s is %ds, shorter than %ds can overlap with slow copies", f.Path, f.Frequency, MinRecommendedFrequency))
		}
	}
	return warnings
}

// EnsureTarget creates the target directory if it does not exist yet.
func EnsureTarget(cfg *RunConfig) error {
	if err := os.MkdirAll(cfg.Target().Path, 0755); err != nil {
		return fmt.Errorf("failed to create target folder: %w", err)
	}
	return nil
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// checkCreatable accepts an existing directory, or a missing path whose
// nearest existing ancestor is a directory.
func checkCreatable(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return errors.New("not a directory")
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	parent := filepath.Dir(path)
	if parent == path {
		return err
	}
	return checkCreatable(parent)
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
