package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader reads channel subscription seed files from a directory
type Loader struct {
	channelsDir string
}

// NewLoader creates a new channel seed loader
func NewLoader(channelsDir string) *Loader {
	return &Loader{channelsDir: channelsDir}
}

// LoadAll loads all YAML seed files from the channels directory
func (l *Loader) LoadAll() ([]*ChannelConfig, error) {
	var configs []*ChannelConfig

	// A missing directory just means no seeds are configured
	if _, err := os.Stat(l.channelsDir); os.IsNotExist(err) {
		return configs, nil
	}

	files, err := filepath.Glob(filepath.Join(l.channelsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	// Also check for .yml extension
	ymlFiles, err := filepath.Glob(filepath.Join(l.channelsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		config, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(config); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", file, err)
		}

		configs = append(configs, config)
		slog.Debug("Loaded channel seed", "file", file, "channel", config.Channel.Name)
	}

	return configs, nil
}

func (l *Loader) loadFile(path string) (*ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config ChannelConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.setDefaults(&config)

	return &config, nil
}

func (l *Loader) setDefaults(config *ChannelConfig) {
	if config.Settings.CheckIntervalHours == 0 {
		config.Settings.CheckIntervalHours = 24
	}
	if config.Channel.Name == "" {
		config.Channel.Name = config.Channel.URL
	}
}

func (l *Loader) validate(config *ChannelConfig) error {
	if config.Channel.URL == "" {
		return fmt.Errorf("channel URL is required")
	}
	if config.Settings.CheckIntervalHours < 0 {
		return fmt.Errorf("check interval must be non-negative")
	}
	if config.Settings.Priority < 0 {
		return fmt.Errorf("priority must be non-negative")
	}
	return nil
}
