package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/tinyland-inc/torrentclaw/pkg/media"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123456" and 123456.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Channels     ChannelsConfig     `json:"channels"`
	Jackett      JackettConfig      `json:"jackett"`
	Transmission TransmissionConfig `json:"transmission"`
	OMDB         OMDBConfig         `json:"omdb,omitzero"`
	Session      SessionConfig      `json:"session"`
	Digest       DigestConfig       `json:"digest,omitzero"`
	Gateway      GatewayConfig      `json:"gateway"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Slack    SlackConfig    `json:"slack"`
	Console  ConsoleConfig  `json:"console"`
}

// AllowFrom lists allow two formats per the chat platforms: a bare chat ID
// or an id the platform hands out for groups/channels. An empty list
// authorizes every chat; that is an insecure default intended only for
// private, single-user deployments.
type TelegramConfig struct {
	Enabled   bool                `env:"TORRENTCLAW_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"TORRENTCLAW_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"TORRENTCLAW_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type DiscordConfig struct {
	Enabled   bool                `env:"TORRENTCLAW_CHANNELS_DISCORD_ENABLED"    json:"enabled"`
	Token     string              `env:"TORRENTCLAW_CHANNELS_DISCORD_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"TORRENTCLAW_CHANNELS_DISCORD_ALLOW_FROM" json:"allow_from"`
}

type SlackConfig struct {
	Enabled   bool                `env:"TORRENTCLAW_CHANNELS_SLACK_ENABLED"    json:"enabled"`
	BotToken  string              `env:"TORRENTCLAW_CHANNELS_SLACK_BOT_TOKEN"  json:"bot_token"`
	AppToken  string              `env:"TORRENTCLAW_CHANNELS_SLACK_APP_TOKEN"  json:"app_token"`
	AllowFrom FlexibleStringSlice `env:"TORRENTCLAW_CHANNELS_SLACK_ALLOW_FROM" json:"allow_from"`
}

type ConsoleConfig struct {
	Enabled bool `env:"TORRENTCLAW_CHANNELS_CONSOLE_ENABLED" json:"enabled"`
}

type JackettConfig struct {
	URL            string `env:"TORRENTCLAW_JACKETT_URL"             json:"url"`
	APIKey         string `env:"TORRENTCLAW_JACKETT_API_KEY"         json:"api_key"`
	MaxResults     int    `env:"TORRENTCLAW_JACKETT_MAX_RESULTS"     json:"max_results"`
	TimeoutSeconds int    `env:"TORRENTCLAW_JACKETT_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

type TransmissionConfig struct {
	URL            string `env:"TORRENTCLAW_TRANSMISSION_URL"             json:"url"`
	Credentials    string `env:"TORRENTCLAW_TRANSMISSION_CREDENTIALS"     json:"credentials,omitempty"` // "user:password"
	TVPath         string `env:"TORRENTCLAW_TRANSMISSION_TV_PATH"         json:"tv_path"`
	MoviePath      string `env:"TORRENTCLAW_TRANSMISSION_MOVIE_PATH"      json:"movie_path"`
	TimeoutSeconds int    `env:"TORRENTCLAW_TRANSMISSION_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

// PathFor returns the download directory for a category.
func (t TransmissionConfig) PathFor(cat media.Category) (string, error) {
	switch cat {
	case media.TV:
		if t.TVPath == "" {
			return "", errors.New("transmission.tv_path is not configured")
		}
		return t.TVPath, nil
	case media.Movie:
		if t.MoviePath == "" {
			return "", errors.New("transmission.movie_path is not configured")
		}
		return t.MoviePath, nil
	default:
		return "", fmt.Errorf("no download path for category %q", cat)
	}
}

type OMDBConfig struct {
	APIKey         string `env:"TORRENTCLAW_OMDB_API_KEY"         json:"api_key"`
	TimeoutSeconds int    `env:"TORRENTCLAW_OMDB_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

type SessionConfig struct {
	TTLSeconds   int `env:"TORRENTCLAW_SESSION_TTL_SECONDS"   json:"ttl_seconds"`
	SweepSeconds int `env:"TORRENTCLAW_SESSION_SWEEP_SECONDS" json:"sweep_seconds"`
}

func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepSeconds) * time.Second
}

// DigestTarget names a chat that receives the scheduled storage digest.
type DigestTarget struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

type DigestConfig struct {
	Enabled  bool           `env:"TORRENTCLAW_DIGEST_ENABLED"  json:"enabled"`
	Schedule string         `env:"TORRENTCLAW_DIGEST_SCHEDULE" json:"schedule"` // cron expression
	Targets  []DigestTarget `json:"targets,omitempty"`
}

type GatewayConfig struct {
	Host string `env:"TORRENTCLAW_GATEWAY_HOST" json:"host"`
	Port int    `env:"TORRENTCLAW_GATEWAY_PORT" json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Console: ConsoleConfig{Enabled: false},
		},
		Jackett: JackettConfig{
			URL:            "http://localhost:9117",
			MaxResults:     20,
			TimeoutSeconds: 30,
		},
		Transmission: TransmissionConfig{
			URL:            "http://localhost:9091",
			TimeoutSeconds: 30,
		},
		OMDB: OMDBConfig{
			TimeoutSeconds: 15,
		},
		Session: SessionConfig{
			TTLSeconds:   300,
			SweepSeconds: 60,
		},
		Digest: DigestConfig{
			Schedule: "0 8 * * *",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
	}
}

// LoadConfig layers defaults, then the JSON file at path (missing file is
// fine), then environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations that cannot start: enabled channels
// without credentials and a missing Jackett API key. Adapter endpoints have
// working localhost defaults and are not checked here.
func (c *Config) Validate() error {
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return errors.New("channels.telegram.token is required when the telegram channel is enabled")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return errors.New("channels.discord.token is required when the discord channel is enabled")
	}
	if c.Channels.Slack.Enabled {
		if c.Channels.Slack.BotToken == "" || c.Channels.Slack.AppToken == "" {
			return errors.New("channels.slack.bot_token and app_token are required when the slack channel is enabled")
		}
	}
	if !c.Channels.Telegram.Enabled && !c.Channels.Discord.Enabled &&
		!c.Channels.Slack.Enabled && !c.Channels.Console.Enabled {
		return errors.New("no channels enabled")
	}
	if c.Jackett.APIKey == "" {
		return errors.New("jackett.api_key is required")
	}
	if c.Digest.Enabled && len(c.Digest.Targets) == 0 {
		return errors.New("digest.targets is required when the digest is enabled")
	}
	return nil
}
