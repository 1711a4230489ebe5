package nuntius

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/nuntius/internal/repository"
	"github.com/OrlandoBitencourt/nuntius/internal/tracking"
)

func applyOptions(t *testing.T, opts ...Option) *clientConfig {
	t.Helper()
	cfg := &clientConfig{}
	for _, opt := range opts {
		require.NoError(t, opt(cfg))
	}
	return cfg
}

func TestWithEndpoint(t *testing.T) {
	cfg := applyOptions(t, WithEndpoint("https://api.example.com"))
	assert.Equal(t, "https://api.example.com", cfg.endpoint)

	assert.Error(t, WithEndpoint("")(&clientConfig{}))
}

func TestWithProjectToken(t *testing.T) {
	cfg := applyOptions(t, WithProjectToken("tok"))
	assert.Equal(t, "tok", cfg.projectToken)

	assert.Error(t, WithProjectToken("")(&clientConfig{}))
}

func TestWithDurations(t *testing.T) {
	cfg := applyOptions(t,
		WithTimeout(3*time.Second),
		WithSegmentSyncInterval(time.Minute),
		WithSessionTimeout(45*time.Second),
	)
	assert.Equal(t, 3*time.Second, cfg.timeout)
	assert.Equal(t, time.Minute, cfg.syncInterval)
	assert.Equal(t, 45*time.Second, cfg.sessionTimeout)
}

func TestWithLogLevel(t *testing.T) {
	cfg := applyOptions(t, WithLogLevel("DEBUG"))
	assert.Equal(t, "debug", cfg.logLevel)

	assert.Error(t, WithLogLevel("verbose")(&clientConfig{}))
}

func TestWithRepositoryAndSink(t *testing.T) {
	repo := repository.NewMockClient()
	sink := tracking.NewRecorder()

	cfg := applyOptions(t, WithRepository(repo), WithTrackingSink(sink))
	assert.Equal(t, repository.Client(repo), cfg.repo)
	assert.Equal(t, tracking.Sink(sink), cfg.sink)

	assert.Error(t, WithRepository(nil)(&clientConfig{}))
	assert.Error(t, WithTrackingSink(nil)(&clientConfig{}))
}

func TestWithConfig(t *testing.T) {
	full := Config{
		API: APIConfig{
			Endpoint:      "https://api.example.com",
			ProjectToken:  "tok",
			Authorization: "key",
			Timeout:       7 * time.Second,
		},
		Segments:   SegmentsConfig{SyncInterval: 2 * time.Minute},
		Session:    SessionConfig{Timeout: 30 * time.Second},
		StorageDir: "/tmp/nuntius",
		LogLevel:   "warn",
	}

	cfg := applyOptions(t, WithConfig(full))
	assert.Equal(t, "https://api.example.com", cfg.endpoint)
	assert.Equal(t, "tok", cfg.projectToken)
	assert.Equal(t, "key", cfg.authorization)
	assert.Equal(t, 7*time.Second, cfg.timeout)
	assert.Equal(t, 2*time.Minute, cfg.syncInterval)
	assert.Equal(t, 30*time.Second, cfg.sessionTimeout)
	assert.Equal(t, "/tmp/nuntius", cfg.storageDir)
	assert.Equal(t, "warn", cfg.logLevel)
}

func TestBuildLogger(t *testing.T) {
	cfg := applyOptions(t, WithLogLevel("error"))
	assert.Equal(t, zerolog.ErrorLevel, cfg.buildLogger().GetLevel())

	injected := zerolog.Nop()
	cfg = applyOptions(t, WithLogger(injected))
	assert.Equal(t, injected.GetLevel(), cfg.buildLogger().GetLevel())
}
