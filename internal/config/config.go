// Package config handles dispatchsync configuration loading and
// validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for dispatchsync.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Channel settings for the backend push/command connection
	Channel ChannelConfig `yaml:"channel" mapstructure:"channel"`

	// Polling settings for the offline fallback loop
	Polling PollingConfig `yaml:"polling" mapstructure:"polling"`

	// Cache settings for the session cache database
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Daemon settings for the local UI socket
	Daemon DaemonConfig `yaml:"daemon" mapstructure:"daemon"`
}

// GlobalConfig contains global dispatchsync settings.
type GlobalConfig struct {
	// DataDir is where dispatchsync stores its data
	// (default: ~/.local/share/dispatchsync).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored
	// (default: ~/.config/dispatchsync).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ChannelConfig contains settings for the backend channel.
type ChannelConfig struct {
	// Address is the backend endpoint ("tcp://host:port" or
	// "unix:///path").
	Address string `yaml:"address" mapstructure:"address"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// ReconnectInterval is the pause between reconnect attempts after
	// the push stream drops.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`

	// CommandTimeout bounds a command round-trip.
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`
}

// PollingConfig contains settings for the polling fallback.
type PollingConfig struct {
	// Interval is how often the poller fetches an unread snapshot
	// while the push channel is down.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// CacheConfig contains session cache settings.
type CacheConfig struct {
	// Path is the SQLite session cache file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// DaemonConfig contains settings for the local surface socket.
type DaemonConfig struct {
	// Listen is the address UI surfaces connect to
	// ("unix:///path" or "tcp://host:port").
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "dispatchsync"),
			ConfigDir: filepath.Join(homeDir, ".config", "dispatchsync"),
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Channel: ChannelConfig{
			Address:           "tcp://127.0.0.1:7420",
			DialTimeout:       2 * time.Second,
			ReconnectInterval: 2 * time.Second,
			CommandTimeout:    10 * time.Second,
		},
		Polling: PollingConfig{
			Interval: 15 * time.Second,
		},
		Cache: CacheConfig{
			Path:          "", // Will be set to DataDir/session.db
			BusyTimeoutMs: 5000,
		},
		Daemon: DaemonConfig{
			Listen: "", // Will be set to unix://DataDir/dispatchsync.sock
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Channel.Address == "" {
		return fmt.Errorf("channel.address is required")
	}

	if c.Channel.DialTimeout < 100*time.Millisecond {
		return fmt.Errorf("channel.dial_timeout must be at least 100ms")
	}

	if c.Channel.ReconnectInterval < 100*time.Millisecond {
		return fmt.Errorf("channel.reconnect_interval must be at least 100ms")
	}

	if c.Polling.Interval < time.Second {
		return fmt.Errorf("polling.interval must be at least 1s")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// CachePath returns the full session cache path.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Global.DataDir, "session.db")
}

// DaemonListen returns the full daemon listen address.
func (c *Config) DaemonListen() string {
	if c.Daemon.Listen != "" {
		return c.Daemon.Listen
	}
	return "unix://" + filepath.Join(c.Global.DataDir, "dispatchsync.sock")
}
