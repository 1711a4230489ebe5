package nuntius

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/repository"
	"github.com/OrlandoBitencourt/nuntius/internal/tracking"
)

// Option configures a client.
type Option func(*clientConfig) error

// clientConfig holds internal configuration.
type clientConfig struct {
	endpoint      string
	projectToken  string
	authorization string
	timeout       time.Duration

	syncInterval   time.Duration
	sessionTimeout time.Duration
	storageDir     string

	logger    *zerolog.Logger
	logLevel  string
	repo      repository.Client
	sink      tracking.Sink
}

// WithEndpoint sets the engagement API base URL. Required unless a
// custom repository is injected.
//
// Example: nuntius.WithEndpoint("https://api.example.com")
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) error {
		if endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty")
		}
		c.endpoint = endpoint
		return nil
	}
}

// WithProjectToken sets the project token sent on every request path.
func WithProjectToken(token string) Option {
	return func(c *clientConfig) error {
		if token == "" {
			return fmt.Errorf("project token cannot be empty")
		}
		c.projectToken = token
		return nil
	}
}

// WithAuthorization sets the public API key.
func WithAuthorization(key string) Option {
	return func(c *clientConfig) error {
		c.authorization = key
		return nil
	}
}

// WithTimeout sets the HTTP timeout for API requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithSegmentSyncInterval sets how often segments re-synchronize in the
// background. Zero disables the loop.
// Default: 5 minutes
func WithSegmentSyncInterval(interval time.Duration) Option {
	return func(c *clientConfig) error {
		c.syncInterval = interval
		return nil
	}
}

// WithSessionTimeout sets the inactivity window after which a new visit
// starts. Default: 20 seconds
func WithSessionTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.sessionTimeout = timeout
		return nil
	}
}

// WithStorageDir sets the directory for persisted state. When empty, an
// in-memory store is used and nothing survives the process.
func WithStorageDir(dir string) Option {
	return func(c *clientConfig) error {
		c.storageDir = dir
		return nil
	}
}

// WithLogger injects a preconfigured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *clientConfig) error {
		c.logger = &logger
		return nil
	}
}

// WithLogLevel sets the level of the default logger:
// "error", "warn", "info" or "debug".
func WithLogLevel(level string) Option {
	return func(c *clientConfig) error {
		switch strings.ToLower(level) {
		case "error", "warn", "info", "debug":
			c.logLevel = strings.ToLower(level)
			return nil
		default:
			return fmt.Errorf("invalid log level: %s", level)
		}
	}
}

// WithRepository injects a custom fetch collaborator, replacing the
// HTTP client. Intended for tests and host apps with their own
// transport stack.
func WithRepository(repo repository.Client) Option {
	return func(c *clientConfig) error {
		if repo == nil {
			return fmt.Errorf("repository cannot be nil")
		}
		c.repo = repo
		return nil
	}
}

// WithTrackingSink injects the event sink notified on display and
// interaction decisions. Defaults to a no-op sink.
func WithTrackingSink(sink tracking.Sink) Option {
	return func(c *clientConfig) error {
		if sink == nil {
			return fmt.Errorf("tracking sink cannot be nil")
		}
		c.sink = sink
		return nil
	}
}

// WithConfig applies a full Config struct. This is an alternative to
// using individual options.
func WithConfig(cfg Config) Option {
	return func(c *clientConfig) error {
		c.endpoint = cfg.API.Endpoint
		c.projectToken = cfg.API.ProjectToken
		c.authorization = cfg.API.Authorization
		c.timeout = cfg.API.Timeout
		c.syncInterval = cfg.Segments.SyncInterval
		c.sessionTimeout = cfg.Session.Timeout
		c.storageDir = cfg.StorageDir
		if cfg.LogLevel != "" {
			c.logLevel = cfg.LogLevel
		}
		return nil
	}
}

// buildLogger returns the injected logger or a console logger at the
// configured level.
func (c *clientConfig) buildLogger() zerolog.Logger {
	if c.logger != nil {
		return *c.logger
	}

	level := zerolog.InfoLevel
	switch c.logLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
