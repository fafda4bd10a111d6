package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/onurmatik/taletinker/storytree"
)

const (
	minLinesEnvVar = "TALETINKER_MIN_STORY_LINES"
	debugLogEnvVar = "TALETINKER_DEBUG_LOG"
)

// appConfig is read from config.yaml in the taletinker home. Every field is
// optional.
type appConfig struct {
	MinStoryLines   int                `yaml:"min_story_lines"`
	SuggestionCount int                `yaml:"suggestion_count"`
	SuggestionsDir  string             `yaml:"suggestions_dir"`
	DebugLog        string             `yaml:"debug_log"`
	WatchLibrary    bool               `yaml:"watch_library"`
	Geometry        storytree.Geometry `yaml:"geometry"`
}

func defaultConfig(paths appDataPaths) appConfig {
	return appConfig{
		MinStoryLines:   storytree.DefaultMinLines,
		SuggestionCount: 3,
		SuggestionsDir:  paths.suggestionsDir,
		WatchLibrary:    true,
		Geometry:        storytree.DefaultGeometry,
	}
}

// loadConfig layers config.yaml and then environment overrides on top of the
// defaults. A missing config file is not an error.
func loadConfig(paths appDataPaths) (appConfig, error) {
	cfg := defaultConfig(paths)

	data, err := os.ReadFile(paths.configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return appConfig{}, fmt.Errorf("parse config %q: %w", paths.configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return appConfig{}, fmt.Errorf("read config %q: %w", paths.configPath, err)
	}

	if raw := strings.TrimSpace(os.Getenv(minLinesEnvVar)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return appConfig{}, fmt.Errorf("parse %s=%q: %w", minLinesEnvVar, raw, err)
		}
		cfg.MinStoryLines = n
	}
	if raw := strings.TrimSpace(os.Getenv(debugLogEnvVar)); raw != "" {
		cfg.DebugLog = raw
	}

	cfg.SuggestionsDir = expandHomePath(cfg.SuggestionsDir)
	cfg.DebugLog = expandHomePath(cfg.DebugLog)
	if err := cfg.validate(); err != nil {
		return appConfig{}, fmt.Errorf("config %q: %w", paths.configPath, err)
	}
	return cfg, nil
}

func (c appConfig) validate() error {
	if c.MinStoryLines < 1 {
		return fmt.Errorf("min_story_lines must be >= 1, got %d", c.MinStoryLines)
	}
	if c.SuggestionCount < 1 {
		return fmt.Errorf("suggestion_count must be >= 1, got %d", c.SuggestionCount)
	}
	g := c.Geometry
	if g.ColumnGap <= 0 || g.RowGap <= 0 || g.Padding < 0 || g.MinWidth < 0 || g.MinHeight < 0 {
		return fmt.Errorf("geometry must have positive gaps and non-negative padding and minimums")
	}
	return nil
}

// loadAppContext resolves paths and config for CLI subcommands.
func loadAppContext() (appDataPaths, appConfig, error) {
	paths, err := resolveDataPaths()
	if err != nil {
		return appDataPaths{}, appConfig{}, err
	}
	cfg, err := loadConfig(paths)
	if err != nil {
		return appDataPaths{}, appConfig{}, err
	}
	return paths, cfg, nil
}
