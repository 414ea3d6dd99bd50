// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted form of the runtime configuration, loaded
// from and saved to YAML. Device indices are deliberately never
// persisted: they are host-specific and go stale between sessions.
type Settings struct {
	LogLevel string           `yaml:"log_level"`
	Analyzer AnalyzerSettings `yaml:"analyzer"`
	Source   SourceSettings   `yaml:"source"`
	Audio    BufferSettings   `yaml:"audio"`
}

// AnalyzerSettings holds the spectral analysis options.
type AnalyzerSettings struct {
	FFTSize        int    `yaml:"fft_size"`
	WindowType     string `yaml:"window_type"`
	ScaleType      string `yaml:"scale_type"`
	AveragingCount int    `yaml:"averaging_count"`
}

// SourceSettings holds the signal-source options.
type SourceSettings struct {
	SourceType        string  `yaml:"source_type"`
	MonitoringEnabled bool    `yaml:"monitoring_enabled"`
	MonitoringVolume  int     `yaml:"monitoring_volume"` // percent, 0-100
	AmpWhite          float64 `yaml:"amp_whitenoise"`
	AmpSpectral       float64 `yaml:"amp_spectral"`
}

// BufferSettings holds the buffer sizing options.
type BufferSettings struct {
	ChunkSize        int `yaml:"chunk_size"`
	BufferSize       int `yaml:"buffer_size"`
	InputBufferSize  int `yaml:"input_buffer_size"`
	OutputBufferSize int `yaml:"output_buffer_size"`
}

// DefaultSettings returns the settings matching a fresh AudioConfig.
func DefaultSettings() Settings {
	return Settings{
		LogLevel: "error",
		Analyzer: AnalyzerSettings{
			FFTSize:        DefaultFFTSize,
			WindowType:     DefaultWindowType,
			ScaleType:      DefaultScaleType,
			AveragingCount: DefaultAveragingCount,
		},
		Source: SourceSettings{
			SourceType:        "white",
			MonitoringEnabled: false,
			MonitoringVolume:  int(DefaultMonitoringVolume * 100),
			AmpWhite:          1.0,
			AmpSpectral:       1.0,
		},
		Audio: BufferSettings{
			ChunkSize:        DefaultChunkSize,
			BufferSize:       DefaultBufferSize,
			InputBufferSize:  DefaultInputBufferSize,
			OutputBufferSize: DefaultOutputBufferSize,
		},
	}
}

// DefaultSettingsPath returns the platform config-dir location of the
// settings file.
func DefaultSettingsPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(base, "spectrum", "settings.yaml"), nil
}

// LoadSettings reads settings from path. If path is empty the default
// location is used; a missing file yields the defaults without error so
// first runs work out of the box. Values absent from the file keep
// their defaults (unmarshalling over a populated struct).
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path == "" {
		var err error
		path, err = DefaultSettingsPath()
		if err != nil {
			return &s, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &s, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return &s, nil
}

// SaveSettings writes settings to path, creating parent directories as
// needed. An empty path saves to the default location.
func SaveSettings(path string, s *Settings) error {
	if path == "" {
		var err error
		path, err = DefaultSettingsPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Apply copies persisted settings onto a runtime config.
func (s *Settings) Apply(c *AudioConfig) {
	if s.Analyzer.FFTSize > 0 {
		c.SetFFTSize(s.Analyzer.FFTSize)
	}
	if s.Analyzer.WindowType != "" {
		c.SetWindowType(s.Analyzer.WindowType)
	}
	if s.Analyzer.ScaleType != "" {
		c.ScaleType = s.Analyzer.ScaleType
	}
	if s.Analyzer.AveragingCount > 0 {
		c.AveragingCount = s.Analyzer.AveragingCount
	}

	c.SetMonitoringEnabled(s.Source.MonitoringEnabled)
	c.SetMonitoringVolume(float64(s.Source.MonitoringVolume) / 100)
	c.SetAmpWhite(s.Source.AmpWhite)
	c.SetAmpSpectral(s.Source.AmpSpectral)

	if s.Audio.ChunkSize > 0 {
		c.ChunkSize = s.Audio.ChunkSize
	}
	if s.Audio.BufferSize > 0 {
		c.BufferSize = s.Audio.BufferSize
	}
	if s.Audio.InputBufferSize > 0 {
		c.InputBufferSize = s.Audio.InputBufferSize
	}
	if s.Audio.OutputBufferSize > 0 {
		c.OutputBufferSize = s.Audio.OutputBufferSize
	}
}

// Snapshot captures the persistable parts of a runtime config.
func Snapshot(c *AudioConfig, sourceType string) *Settings {
	s := DefaultSettings()
	s.Analyzer.FFTSize = c.FFTSize()
	s.Analyzer.WindowType = c.WindowType()
	s.Analyzer.ScaleType = c.ScaleType
	s.Analyzer.AveragingCount = c.AveragingCount
	s.Source.SourceType = sourceType
	s.Source.MonitoringEnabled = c.MonitoringEnabled()
	s.Source.MonitoringVolume = int(c.MonitoringVolume() * 100)
	s.Source.AmpWhite = c.AmpWhite()
	s.Source.AmpSpectral = c.AmpSpectral()
	s.Audio.ChunkSize = c.ChunkSize
	s.Audio.BufferSize = c.BufferSize
	s.Audio.InputBufferSize = c.InputBufferSize
	s.Audio.OutputBufferSize = c.OutputBufferSize
	return &s
}
