// Package config provides YAML-based configuration loading for hoxy.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the reservation API used when none is configured.
const DefaultBaseURL = "https://hoxy-server.onrender.com"

// Config is the top-level hoxy configuration, loaded from hoxy.yaml.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Chat      ChatConfig      `yaml:"chat"`
	Store     StoreConfig     `yaml:"store"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Relay     RelayConfig     `yaml:"relay"`
}

// APIConfig holds settings for the reservation REST API.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RealtimeConfig holds connection settings for the realtime insert stream.
// An empty URL disables the subscription.
type RealtimeConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	Schema           string `yaml:"schema"`
	Table            string `yaml:"table"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
}

// Heartbeat returns the channel heartbeat interval.
func (r RealtimeConfig) Heartbeat() time.Duration {
	return time.Duration(r.HeartbeatSeconds) * time.Second
}

// ChatConfig controls the message cache.
type ChatConfig struct {
	Role       string `yaml:"role"`
	PageSize   int    `yaml:"page_size"`
	ResyncCron string `yaml:"resync_cron"`
	Timezone   string `yaml:"timezone"`
}

// Location loads the configured time zone. validate guarantees it loads.
func (c ChatConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// StoreConfig selects where client state is persisted.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// DashboardConfig holds settings for the local chat view server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// RelayConfig lists optional chat platforms that receive counterpart messages.
type RelayConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack relay credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord relay credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 30
	}
	if c.Realtime.Schema == "" {
		c.Realtime.Schema = "public"
	}
	if c.Realtime.Table == "" {
		c.Realtime.Table = "messages"
	}
	if c.Realtime.HeartbeatSeconds == 0 {
		c.Realtime.HeartbeatSeconds = 25
	}
	if c.Chat.Role == "" {
		c.Chat.Role = "customer"
	}
	if c.Chat.PageSize == 0 {
		c.Chat.PageSize = 20
	}
	if c.Chat.Timezone == "" {
		c.Chat.Timezone = "Asia/Seoul"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "hoxy.db"
	}
	if c.Store.Host == "" {
		c.Store.Host = "127.0.0.1"
	}
	if c.Store.Port == 0 {
		c.Store.Port = 3306
	}
	if c.Store.User == "" {
		c.Store.User = "root"
	}
	if c.Store.Database == "" {
		c.Store.Database = "hoxy"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an http(s) URL", c.API.BaseURL))
	}
	if c.API.TimeoutSeconds < 0 {
		errs = append(errs, "api.timeout_seconds must be positive")
	}
	if c.Realtime.URL != "" {
		if u, err := url.Parse(c.Realtime.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Sprintf("realtime.url %q must be a ws(s) URL", c.Realtime.URL))
		}
		if c.Realtime.APIKey == "" {
			errs = append(errs, "realtime.api_key is required when realtime.url is set")
		}
	}
	if c.Realtime.HeartbeatSeconds < 0 {
		errs = append(errs, "realtime.heartbeat_seconds must be positive")
	}
	switch c.Chat.Role {
	case "customer", "author":
	default:
		errs = append(errs, fmt.Sprintf("chat.role %q must be customer or author", c.Chat.Role))
	}
	if c.Chat.PageSize < 0 {
		errs = append(errs, "chat.page_size must be positive")
	}
	if c.Chat.ResyncCron != "" {
		if _, err := cron.ParseStandard(c.Chat.ResyncCron); err != nil {
			errs = append(errs, fmt.Sprintf("chat.resync_cron %q: %v", c.Chat.ResyncCron, err))
		}
	}
	if _, err := time.LoadLocation(c.Chat.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("chat.timezone %q: %v", c.Chat.Timezone, err))
	}
	switch c.Store.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or mysql", c.Store.Driver))
	}
	if c.Relay.Slack.BotToken != "" && c.Relay.Slack.ChannelID == "" {
		errs = append(errs, "relay.slack.channel_id is required with a bot token")
	}
	if c.Relay.Discord.BotToken != "" && c.Relay.Discord.ChannelID == "" {
		errs = append(errs, "relay.discord.channel_id is required with a bot token")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
