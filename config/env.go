package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides c with any environment knobs that are set.
func ApplyEnv(c *Config) {
	if v, ok := lookup("DATA_PATH"); ok {
		c.DataPath = v
	}
	if v, ok := lookup("DATABASE_PATH"); ok {
		c.DatabasePath = v
	}
	if v, ok := lookup("PLAYLIST_URL"); ok {
		c.PlaylistURL = v
	}
	if v, ok := lookup("SCHEDULE_URL"); ok {
		c.ScheduleURL = v
	}
	if v, ok := lookup("SYNC_CRON"); ok {
		c.SyncCron = v
	}
	if v, ok := lookup("USER_AGENT"); ok {
		c.UserAgent = v
	}
	if v, ok := lookup("LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.Log.File = v
	}

	lookupBool("SYNC_ON_BOOT", &c.SyncOnBoot)
	lookupBool("CLEAR_ON_BOOT", &c.ClearOnBoot)
	lookupBool("SAFE_LOGS", &c.Log.SafeLogs)

	lookupDuration("CACHE_DURATION", &c.CacheDuration)
	lookupDuration("LOOKUP_CACHE_TTL", &c.LookupCacheTTL)
	lookupDuration("HTTP_TIMEOUT", &c.HTTPTimeout)

	if debug, ok := lookup("DEBUG"); ok && strings.EqualFold(debug, "true") {
		c.Log.Level = "debug"
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func lookupBool(key string, dst *bool) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func lookupDuration(key string, dst *time.Duration) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
