package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	fPath := filepath.Join(t.TempDir(), "config.yml")
	content := `
dataPath: /srv/guide
playlistUrl: http://example.com/playlist.m3u
cacheDuration: 12h
syncCron: "*/30 * * * *"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(fPath, []byte(content), 0644))

	c, err := Load(fPath)
	require.NoError(t, err)

	assert.Equal(t, "/srv/guide", c.DataPath)
	assert.Equal(t, "http://example.com/playlist.m3u", c.PlaylistURL)
	assert.Equal(t, 12*time.Hour, c.CacheDuration)
	assert.Equal(t, "*/30 * * * *", c.SyncCron)
	assert.Equal(t, "debug", c.Log.Level)

	// untouched keys keep their defaults
	assert.Equal(t, DefaultUserAgent, c.UserAgent)
	assert.True(t, c.SyncOnBoot)
	assert.Equal(t, time.Second, c.NumberEntryTimeout)
}

func TestCreateDefaultCfg_RoundTrips(t *testing.T) {
	fPath := filepath.Join(t.TempDir(), "nested", "config.yml")
	require.NoError(t, CreateDefaultCfg(fPath))

	c, err := Load(fPath)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PLAYLIST_URL", " http://example.com/a.m3u ")
	t.Setenv("SYNC_ON_BOOT", "false")
	t.Setenv("CACHE_DURATION", "2h")
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")
	t.Setenv("SYNC_CRON", "")
	t.Setenv("DEBUG", "true")

	c := Default()
	ApplyEnv(c)

	assert.Equal(t, "http://example.com/a.m3u", c.PlaylistURL)
	assert.False(t, c.SyncOnBoot)
	assert.Equal(t, 2*time.Hour, c.CacheDuration)
	assert.Equal(t, 60*time.Second, c.HTTPTimeout)
	assert.Equal(t, DefaultSyncCron, c.SyncCron)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestDatabaseFile(t *testing.T) {
	c := &Config{DataPath: "/data"}
	assert.Equal(t, filepath.Join("/data", "guide.db"), c.DatabaseFile())

	c.DatabasePath = MemoryDatabase
	assert.Equal(t, MemoryDatabase, c.DatabaseFile())
}
