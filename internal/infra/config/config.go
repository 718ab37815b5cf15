package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir             string        `mapstructure:"out_dir" yaml:"out_dir"`
	Concurrency        int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	DefaultBitrateKbps int           `mapstructure:"default_bitrate_kbps" yaml:"default_bitrate_kbps"`
	JobTimeout         time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	PausePollInterval  time.Duration `mapstructure:"pause_poll_interval" yaml:"pause_poll_interval"`
	WakeInterval       time.Duration `mapstructure:"wake_interval" yaml:"wake_interval"`
	BackoffBase        time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffMax         time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	TagAudio           bool          `mapstructure:"tag_audio" yaml:"tag_audio"`
}

type ToolsConfig struct {
	YTDLPPath          string `mapstructure:"ytdlp_path" yaml:"ytdlp_path"`
	FFmpegPath         string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	Accelerator        string `mapstructure:"accelerator" yaml:"accelerator"`
	DisableAccelerator bool   `mapstructure:"disable_accelerator" yaml:"disable_accelerator"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

type EventsConfig struct {
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"

	MaxConcurrency = 10
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := newViper()
	var cfg Config
	// Defaults only, cannot fail
	_ = v.Unmarshal(&cfg)
	_ = cfg.validate()
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.concurrency", 3)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.default_bitrate_kbps", 192)
	v.SetDefault("download.job_timeout", "0s")
	v.SetDefault("download.progress_interval", "250ms")
	v.SetDefault("download.pause_poll_interval", "250ms")
	v.SetDefault("download.wake_interval", "1s")
	v.SetDefault("download.backoff_base", "2s")
	v.SetDefault("download.backoff_max", "10s")
	v.SetDefault("download.tag_audio", true)
	v.SetDefault("tools.ytdlp_path", "yt-dlp")
	v.SetDefault("tools.ffmpeg_path", "")
	v.SetDefault("tools.accelerator", "aria2c")
	v.SetDefault("tools.disable_accelerator", false)
	v.SetDefault("log.path", "gotube.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "./data/gotube.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.channel", "gotube:events")

	// Support Environment Variables
	v.SetEnvPrefix("GOTUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	v := newViper()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		switch {
		case explicit:
			return nil, fmt.Errorf("config file not found: %s", path)
		case fileExists("/config/config.yaml"):
			// Docker volume layout
			path = "/config/config.yaml"
		default:
			path = ""
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	if c.Download.Concurrency < 1 {
		c.Download.Concurrency = 1
	}
	if c.Download.Concurrency > MaxConcurrency {
		c.Download.Concurrency = MaxConcurrency
	}

	if c.Download.MaxRetries < 1 {
		c.Download.MaxRetries = 1
	}

	if c.Download.DefaultBitrateKbps <= 0 {
		c.Download.DefaultBitrateKbps = 192
	}

	if c.Download.JobTimeout < 0 {
		return errors.New("download.job_timeout cannot be negative")
	}

	if c.Download.BackoffMax < c.Download.BackoffBase {
		c.Download.BackoffMax = c.Download.BackoffBase
	}

	if c.Tools.YTDLPPath == "" {
		c.Tools.YTDLPPath = "yt-dlp"
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	case DriverNone, "":
		c.Store.Driver = DriverNone
	default:
		return fmt.Errorf("unknown store driver %q (expected sqlite, postgres or none)", c.Store.Driver)
	}

	if c.Events.RedisURL != "" && c.Events.Channel == "" {
		c.Events.Channel = "gotube:events"
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
