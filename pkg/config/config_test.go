package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Sequencer.BeamWidth)
	assert.Equal(t, 6, cfg.Sequencer.MaxLength)
	assert.Equal(t, 2, cfg.Sequencer.CheckpointInterval)
	assert.Equal(t, 5.0, cfg.Sequencer.AvoidPenalty)
	assert.Equal(t, 10.0, cfg.Sequencer.TargetLength)
	assert.True(t, cfg.Sequencer.RelaxOnEmpty)
	assert.Equal(t, "sequence-events", cfg.Kafka.Topics.SequenceEvents)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
sequencer:
  beamWidth: 8
  maxLength: 12
  timeout: 2s
  rhymeScheme: ABAB
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("BS_SEQUENCER_MAX_LENGTH", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Sequencer.BeamWidth)
	assert.Equal(t, 3, cfg.Sequencer.MaxLength)
	assert.Equal(t, 2*time.Second, cfg.Sequencer.Timeout)
	assert.Equal(t, "ABAB", cfg.Sequencer.RhymeScheme)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 2, cfg.Sequencer.CheckpointInterval)
}

func TestLoadRejectsInvalidSequencer(t *testing.T) {
	t.Setenv("BS_SEQUENCER_BEAM_WIDTH", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beamWidth")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDevelopmentConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Sequencer, cfg.Sequencer)
	assert.Equal(t, def.Redis, cfg.Redis)
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestRateLimitEnvOverride(t *testing.T) {
	t.Setenv("BS_SERVER_RATE_LIMIT_RPS", "12.5")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12.5, cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
}
