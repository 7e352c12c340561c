// Package config loads relaychat settings from a JSON file with environment
// overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/omochice/relaychat/internal/heartbeat"
)

type Config struct {
	WSURL             string `json:"ws_url"`
	Token             string `json:"token"`
	UserID            string `json:"user_id"`
	Nickname          string `json:"nickname"`
	HeartbeatInterval string `json:"heartbeat_interval"`
	LogLevel          string `json:"log_level"`

	// MetricsAddr, when set, makes the client serve /metrics on it.
	MetricsAddr string `json:"metrics_addr"`

	Relay struct {
		ListenAddr string `json:"listen_addr"`
		Token      string `json:"token"`
	} `json:"relay"`
}

// DefaultPath returns ~/.relaychat/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".relaychat", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		WSURL:             "ws://localhost:8080/ws",
		HeartbeatInterval: heartbeat.DefaultInterval.String(),
		LogLevel:          "info",
	}
	cfg.Relay.ListenAddr = ":8080"
	return cfg
}

// Load reads the config at path. A missing file is created with defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"RELAYCHAT_WS_URL", &cfg.WSURL},
		{"RELAYCHAT_TOKEN", &cfg.Token},
		{"RELAYCHAT_USER_ID", &cfg.UserID},
		{"RELAYCHAT_NICKNAME", &cfg.Nickname},
		{"RELAYCHAT_RELAY_TOKEN", &cfg.Relay.Token},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Save writes cfg to path atomically. The file holds a token, so it is
// readable by the owner only.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Session returns the connection record described by the config.
func (c *Config) Session() Session {
	return Session{
		WSURL:    c.WSURL,
		Token:    c.Token,
		UserID:   c.UserID,
		Nickname: c.Nickname,
	}
}

// Heartbeat parses the heartbeat interval. An empty value selects the
// default.
func (c *Config) Heartbeat() (time.Duration, error) {
	if c.HeartbeatInterval == "" {
		return heartbeat.DefaultInterval, nil
	}
	d, err := time.ParseDuration(c.HeartbeatInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid heartbeat_interval %q: %w", c.HeartbeatInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid heartbeat_interval %q: must be positive", c.HeartbeatInterval)
	}
	return d, nil
}

// Level maps log_level to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
