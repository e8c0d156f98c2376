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
	t.Setenv("CONFIG_ENV", "does-not-exist")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(65536), cfg.ReadLimit)
	assert.Equal(t, 30*time.Second, cfg.PingPeriod)
	assert.True(t, cfg.RoomGC)
	assert.Equal(t, uint16(40000), cfg.WebRTC.MinPort)
	assert.NotEmpty(t, cfg.WebRTC.ICEServers)
}

func TestLoadRejectsUnparsableFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	// port cannot decode into an int.
	yaml := []byte("port:\n  nested: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.broken.yaml"), yaml, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "broken")

	_, err = Load()
	require.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("mode: debug\nport: 9000\nroom_gc: false\nwebrtc:\n  announced_ip: 203.0.113.7\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.RoomGC)
	assert.Equal(t, "203.0.113.7", cfg.WebRTC.AnnouncedIP)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.PingPeriod)
}
