package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/panel-deck/internal/session"
)

func TestValidRotation(t *testing.T) {
	for _, r := range []int{0, 90, 180, 270} {
		assert.True(t, validRotation(r), "rotation %d", r)
	}
	for _, r := range []int{-90, 45, 91, 360} {
		assert.False(t, validRotation(r), "rotation %d", r)
	}
}

func TestSplitOutput(t *testing.T) {
	dir, file := splitOutput("")
	assert.Equal(t, ".", dir)
	assert.Equal(t, "", file)

	dir, file = splitOutput("shot.png")
	assert.Equal(t, ".", dir)
	assert.Equal(t, "shot.png", file)

	dir, file = splitOutput("/tmp/captures/shot.png")
	assert.Equal(t, "/tmp/captures", dir)
	assert.Equal(t, "shot.png", file)
}

func TestResolveHostExplicit(t *testing.T) {
	host, err := resolveHost("10.0.0.5", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)
}

func TestResolveHostNoFallback(t *testing.T) {
	_, err := resolveHost("", nil)
	assert.Error(t, err)
}

func TestBuildLogConfigDiscardsByDefault(t *testing.T) {
	logCfg := buildLogConfig(session.DefaultConfig(), false)
	assert.False(t, logCfg.Debug)
	assert.Empty(t, logCfg.LogDir, "no debug and no configured dir must leave LogDir empty so output is discarded")
}

func TestBuildLogConfigDebugMode(t *testing.T) {
	logCfg := buildLogConfig(session.DefaultConfig(), true)
	assert.True(t, logCfg.Debug)
	assert.Equal(t, session.ConfigDir(), logCfg.LogDir)
}

func TestBuildLogConfigOverrides(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Logs.Level = "warn"
	cfg.Logs.Format = "text"
	cfg.Logs.Dir = "/var/log/panel-deck"

	logCfg := buildLogConfig(cfg, false)
	assert.Equal(t, "warn", logCfg.Level)
	assert.Equal(t, "text", logCfg.Format)
	assert.Equal(t, "/var/log/panel-deck", logCfg.LogDir)
}

func TestBuildLogConfigDebugFromConfig(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Logs.Debug = true

	logCfg := buildLogConfig(cfg, false)
	assert.True(t, logCfg.Debug)
	assert.Equal(t, session.ConfigDir(), logCfg.LogDir, "config-driven debug still needs a log dir")
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "never", relativeTime(time.Time{}))
	assert.Equal(t, "just now", relativeTime(now.Add(-10*time.Second)))
	assert.Equal(t, "5m ago", relativeTime(now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", relativeTime(now.Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", relativeTime(now.Add(-49*time.Hour)))
}
