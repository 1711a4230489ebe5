package nuntius

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a client. Options take precedence
// over Config fields when both are used.
type Config struct {
	// API configures the connection to the engagement server.
	API APIConfig

	// Segments configures segment synchronization.
	Segments SegmentsConfig

	// Session configures visit semantics.
	Session SessionConfig

	// StorageDir is the directory for persisted state (segment
	// snapshot, display statuses, customer cookie). Share it with
	// extension processes via an app-group path when needed.
	StorageDir string

	// LogLevel is one of "error", "warn", "info", "debug".
	LogLevel string
}

// APIConfig configures the server connection.
type APIConfig struct {
	// Endpoint is the base URL, e.g. "https://api.example.com".
	Endpoint string

	// ProjectToken identifies the project.
	ProjectToken string

	// Authorization is the public API key.
	Authorization string

	// Timeout for HTTP requests.
	Timeout time.Duration
}

// SegmentsConfig configures segment synchronization behavior.
type SegmentsConfig struct {
	// SyncInterval determines how often segments re-synchronize in the
	// background. Zero disables the periodic loop.
	SyncInterval time.Duration
}

// SessionConfig configures visit semantics.
type SessionConfig struct {
	// Timeout is the inactivity window after which a new visit starts.
	Timeout time.Duration
}

// DefaultConfig returns recommended defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 10 * time.Second,
		},
		Segments: SegmentsConfig{
			SyncInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			Timeout: 20 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a config file (yaml, json or toml decided by
// extension) with environment overrides under the NUNTIUS_ prefix.
// Missing file fields fall back to DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("NUNTIUS")
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("api.timeout", defaults.API.Timeout)
	v.SetDefault("segments.sync_interval", defaults.Segments.SyncInterval)
	v.SetDefault("session.timeout", defaults.Session.Timeout)
	v.SetDefault("log_level", defaults.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		API: APIConfig{
			Endpoint:      v.GetString("api.endpoint"),
			ProjectToken:  v.GetString("api.project_token"),
			Authorization: v.GetString("api.authorization"),
			Timeout:       v.GetDuration("api.timeout"),
		},
		Segments: SegmentsConfig{
			SyncInterval: v.GetDuration("segments.sync_interval"),
		},
		Session: SessionConfig{
			Timeout: v.GetDuration("session.timeout"),
		},
		StorageDir: v.GetString("storage_dir"),
		LogLevel:   v.GetString("log_level"),
	}
	return cfg, nil
}
