package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.SFFake)
	assert.True(t, cfg.MoodleFake)
	assert.Equal(t, 15*time.Minute, cfg.RunInterval)
	assert.Empty(t, cfg.EmailRecipients)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SF_FAKE", "false")
	t.Setenv("RUN_INTERVAL", "5m")
	t.Setenv("EMAIL_RECIPIENTS", " a@example.ac.uk , b@example.ac.uk ,")

	cfg := Load()
	assert.False(t, cfg.SFFake)
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.Equal(t, []string{"a@example.ac.uk", "b@example.ac.uk"}, cfg.EmailRecipients)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("RUN_INTERVAL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")

	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.RunInterval)
	assert.Equal(t, 60, cfg.RateLimitPerMin)
}
