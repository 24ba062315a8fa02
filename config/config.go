package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultUserAgent = "IPTV Smarters/1.0.3 (iPad; iOS 16.6.1; Scale/2.00)"
	DefaultSyncCron  = "0 * * * *"
	MemoryDatabase   = ":memory:"
)

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	SafeLogs   bool   `yaml:"safeLogs"`
}

type Config struct {
	DataPath     string `yaml:"dataPath"`
	DatabasePath string `yaml:"databasePath"`

	// Feed locations. When set they take precedence over the persisted
	// settings and trigger a reconfiguration on start.
	PlaylistURL string `yaml:"playlistUrl"`
	ScheduleURL string `yaml:"scheduleUrl"`

	CacheDuration  time.Duration `yaml:"cacheDuration"`
	LookupCacheTTL time.Duration `yaml:"lookupCacheTTL"`
	SyncCron       string        `yaml:"syncCron"`
	SyncOnBoot     bool          `yaml:"syncOnBoot"`
	ClearOnBoot    bool          `yaml:"clearOnBoot"`

	UserAgent   string        `yaml:"userAgent"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
	ListenAddr  string        `yaml:"listen"`

	// Digit entry commit delay used by the number pad.
	NumberEntryTimeout time.Duration `yaml:"numberEntryTimeout"`

	Log LogConfig `yaml:"log"`
}

var globalConfig = Default()

func Default() *Config {
	return &Config{
		DataPath:           "/livetv-guide/data/",
		CacheDuration:      24 * time.Hour,
		LookupCacheTTL:     time.Minute,
		SyncCron:           DefaultSyncCron,
		SyncOnBoot:         true,
		UserAgent:          DefaultUserAgent,
		HTTPTimeout:        60 * time.Second,
		ListenAddr:         ":8080",
		NumberEntryTimeout: time.Second,
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

func GetConfig() *Config {
	return globalConfig
}

func SetConfig(c *Config) {
	globalConfig = c
}

// DatabaseFile returns the store location: DatabasePath when set, a file
// under DataPath otherwise.
func (c *Config) DatabaseFile() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataPath, "guide.db")
}

// Load reads a YAML file on top of the defaults.
func Load(fPath string) (*Config, error) {
	data, err := os.ReadFile(fPath)
	if err != nil {
		return nil, err
	}

	c := Default()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}

	return c, nil
}

func CreateDefaultCfg(fPath string) error {
	if err := os.MkdirAll(filepath.Dir(fPath), 0755); err != nil {
		return err
	}

	f, err := os.Create(fPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	defer encoder.Close()

	return encoder.Encode(Default())
}
