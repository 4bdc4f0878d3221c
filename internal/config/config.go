// Package config loads scrobblesync settings from TOML files and
// SCROBBLESYNC_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides: SCROBBLESYNC_LASTFM_API_KEY
// sets lastfm.api_key.
const EnvPrefix = "SCROBBLESYNC_"

// Provider kinds.
const (
	ProviderSpotify = "spotify"
	ProviderFile    = "file"
)

type Config struct {
	Lastfm   LastfmConfig   `koanf:"lastfm"`
	Provider ProviderConfig `koanf:"provider"`
	Sync     SyncConfig     `koanf:"sync"`
	Log      LogConfig      `koanf:"log"`
	Server   ServerConfig   `koanf:"server"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// LastfmConfig holds Last.fm API credentials and transport settings.
type LastfmConfig struct {
	APIKey            string  `koanf:"api_key"`
	APISecret         string  `koanf:"api_secret"`
	BaseURL           string  `koanf:"base_url"`            // default: Last.fm 2.0 endpoint
	AuthURL           string  `koanf:"auth_url"`            // default: last.fm/api/auth/
	CallbackPort      int     `koanf:"callback_port"`       // default: 9847
	TimeoutSeconds    int     `koanf:"timeout_seconds"`     // default: 30
	RequestsPerSecond float64 `koanf:"requests_per_second"` // 0 disables rate limiting
}

// ProviderConfig selects and configures the listening history source.
type ProviderConfig struct {
	Kind                string `koanf:"kind"` // "spotify" or "file" (default: "file")
	File                string `koanf:"file"` // JSON export path for the file provider
	SpotifyClientID     string `koanf:"spotify_client_id"`
	SpotifyClientSecret string `koanf:"spotify_client_secret"`
	RedirectPort        int    `koanf:"redirect_port"` // default: 8089
	Limit               int    `koanf:"limit"`         // 1-50, default: 50
}

// SyncConfig controls background syncing and local log retention.
type SyncConfig struct {
	IntervalMinutes int   `koanf:"interval_minutes"` // default: 15
	Background      *bool `koanf:"background"`       // default: true
	RetentionDays   int   `koanf:"retention_days"`   // accepted plays kept in the log, 0 keeps all
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error (default: info)
	Format string `koanf:"format"` // console or json (default: console)
	File   bool   `koanf:"file"`   // also write a daily file under the state dir
}

type ServerConfig struct {
	Listen string `koanf:"listen"` // daemon status/metrics address, empty disables
}

type NotifyConfig struct {
	Desktop *bool `koanf:"desktop"` // default: true
}

// Load reads the default config files and the environment.
func Load() (*Config, error) {
	return LoadFrom(getConfigPaths()...)
}

// LoadFrom reads the given files in order, later ones overriding earlier
// ones, then applies environment overrides. Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.Provider.File = expandPath(cfg.Provider.File)
	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	cfg.Lastfm.BaseURL = strings.TrimSpace(cfg.Lastfm.BaseURL)

	return cfg, nil
}

// envKey maps SCROBBLESYNC_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/scrobblesync/config.toml
		filepath.Join(xdg.ConfigHome, "scrobblesync", "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasLastfmConfig returns true if Last.fm API credentials are configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetLastfmConfig returns the Last.fm configuration with defaults applied.
func (c *Config) GetLastfmConfig() LastfmConfig {
	cfg := c.Lastfm
	if cfg.CallbackPort <= 0 || cfg.CallbackPort > 65535 {
		cfg.CallbackPort = 9847
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.RequestsPerSecond < 0 {
		cfg.RequestsPerSecond = 0
	}
	return cfg
}

// Timeout returns the per-request timeout.
func (c LastfmConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetProviderConfig returns the provider configuration with defaults applied.
func (c *Config) GetProviderConfig() ProviderConfig {
	cfg := c.Provider
	if cfg.Kind == "" {
		cfg.Kind = ProviderFile
	}
	if cfg.File == "" {
		cfg.File = filepath.Join(xdg.DataHome, "scrobblesync", "recently-played.json")
	}
	if cfg.RedirectPort <= 0 || cfg.RedirectPort > 65535 {
		cfg.RedirectPort = 8089
	}
	if cfg.Limit <= 0 || cfg.Limit > 50 {
		cfg.Limit = 50
	}
	return cfg
}

// GetSyncConfig returns the sync configuration with defaults applied.
func (c *Config) GetSyncConfig() SyncConfig {
	cfg := c.Sync
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = 15
	}
	if cfg.Background == nil {
		on := true
		cfg.Background = &on
	}
	if cfg.RetentionDays < 0 {
		cfg.RetentionDays = 0
	}
	return cfg
}

// Interval returns the background sync period.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Retention returns how long accepted plays stay in the local log.
func (c SyncConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// BackgroundEnabled reports whether the daemon should sync periodically.
func (c SyncConfig) BackgroundEnabled() bool {
	return c.Background == nil || *c.Background
}

// GetLogConfig returns the log configuration with defaults applied.
func (c *Config) GetLogConfig() LogConfig {
	cfg := c.Log
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format != "json" {
		cfg.Format = "console"
	}
	return cfg
}

// DesktopNotifications reports whether sync failures raise a desktop
// notification (default: true).
func (c *Config) DesktopNotifications() bool {
	return c.Notify.Desktop == nil || *c.Notify.Desktop
}
