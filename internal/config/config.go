package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/petems/radiotape/internal/audio"
)

// Settings holds everything the recorder, merge engine, sweeper and
// HTTP surface are configured with. One instance is loaded at startup
// and passed to the components that need it; there is no process-wide
// singleton.
type Settings struct {
	Device     string `mapstructure:"device"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	BitDepth   int    `mapstructure:"bit_depth"`

	RecordingDir string `mapstructure:"recording_dir"`
	OutputDir    string `mapstructure:"output_dir"`

	RecordingRetentionDays float64 `mapstructure:"recording_retention_days"`
	MergedRetentionHours   float64 `mapstructure:"merged_retention_hours"`

	BindAddress string `mapstructure:"bind_address"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
}

// Load reads radiotape.yaml from path (or the working directory,
// ~/.config/radiotape and /etc/radiotape when path is empty), applies
// RADIOTAPE_* environment overrides, and validates the result. A
// missing config file is fine; defaults apply.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("radiotape")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("radiotape")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "radiotape"))
		}
		v.AddConfigPath("/etc/radiotape")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device", "")
	v.SetDefault("sample_rate", 44100)
	v.SetDefault("channels", 2)
	v.SetDefault("bit_depth", 16)
	v.SetDefault("recording_dir", defaultDir("rec"))
	v.SetDefault("output_dir", filepath.Join(os.TempDir(), "wav_merged"))
	v.SetDefault("recording_retention_days", 90)
	v.SetDefault("merged_retention_hours", 2)
	v.SetDefault("bind_address", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

func defaultDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, name)
}

// Validate checks the capture format and retention values.
func (s *Settings) Validate() error {
	if err := s.Stream().Validate(); err != nil {
		return err
	}
	if s.RecordingDir == "" {
		return fmt.Errorf("recording_dir must not be empty")
	}
	if s.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if s.RecordingRetentionDays <= 0 {
		return fmt.Errorf("recording_retention_days must be positive, got %v", s.RecordingRetentionDays)
	}
	if s.MergedRetentionHours <= 0 {
		return fmt.Errorf("merged_retention_hours must be positive, got %v", s.MergedRetentionHours)
	}
	return nil
}

// Stream returns the capture format described by the settings.
func (s *Settings) Stream() audio.StreamConfig {
	return audio.StreamConfig{
		Device:     s.Device,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		BitDepth:   s.BitDepth,
	}
}

// RecordingRetention returns the segment time-to-live as a duration.
func (s *Settings) RecordingRetention() time.Duration {
	return time.Duration(s.RecordingRetentionDays * 24 * float64(time.Hour))
}

// MergedRetention returns the merged-file time-to-live as a duration.
func (s *Settings) MergedRetention() time.Duration {
	return time.Duration(s.MergedRetentionHours * float64(time.Hour))
}
