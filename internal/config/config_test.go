package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "tcp://127.0.0.1:7420", cfg.Channel.Address)
	require.Equal(t, 15*time.Second, cfg.Polling.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing channel address",
			mutate:  func(c *Config) { c.Channel.Address = "" },
			wantErr: "channel.address",
		},
		{
			name:    "dial timeout too small",
			mutate:  func(c *Config) { c.Channel.DialTimeout = 50 * time.Millisecond },
			wantErr: "channel.dial_timeout",
		},
		{
			name:    "reconnect interval too small",
			mutate:  func(c *Config) { c.Channel.ReconnectInterval = time.Millisecond },
			wantErr: "channel.reconnect_interval",
		},
		{
			name:    "polling interval too small",
			mutate:  func(c *Config) { c.Polling.Interval = 500 * time.Millisecond },
			wantErr: "polling.interval",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmptyLogLevelIsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = ""
	require.NoError(t, cfg.Validate())
}

func TestCachePathDefaultsUnderDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/var/lib/dispatchsync"
	require.Equal(t, filepath.Join("/var/lib/dispatchsync", "session.db"), cfg.CachePath())

	cfg.Cache.Path = "/tmp/other.db"
	require.Equal(t, "/tmp/other.db", cfg.CachePath())
}

func TestDaemonListenDefaultsToUnixSocket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/var/lib/dispatchsync"
	require.Equal(t, "unix://"+filepath.Join("/var/lib/dispatchsync", "dispatchsync.sock"), cfg.DaemonListen())

	cfg.Daemon.Listen = "tcp://127.0.0.1:9000"
	require.Equal(t, "tcp://127.0.0.1:9000", cfg.DaemonListen())
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	tmp := t.TempDir()
	cfg.Global.DataDir = filepath.Join(tmp, "data")
	cfg.Global.ConfigDir = filepath.Join(tmp, "config")

	require.NoError(t, cfg.EnsureDirectories())
	require.DirExists(t, cfg.Global.DataDir)
	require.DirExists(t, cfg.Global.ConfigDir)
}
