package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "replygate"
	DefaultPGSSLMode    = "disable"
	DefaultVKAPIBase    = "https://api.vk.com/method"
	DefaultVKAPIVersion = "5.199"
	DefaultAvitoAPIBase = "https://api.avito.ru"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Generation GenerationConfig `toml:"generation"`
	Dedup      DedupConfig      `toml:"dedup"`
	Delivery   DeliveryConfig   `toml:"delivery"`
	VK         VKConfig         `toml:"vk"`
	Avito      AvitoConfig      `toml:"avito"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// GenerationConfig bounds the run poll loop.
type GenerationConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	MaxPollAttempts     int `toml:"max_poll_attempts"`
}

// DedupConfig controls the inbound deduplication cache.
type DedupConfig struct {
	TTLHours  int    `toml:"ttl_hours"`
	SweepSpec string `toml:"sweep_spec"`
}

type DeliveryConfig struct {
	RateLimitBackoffSeconds int `toml:"rate_limit_backoff_seconds"`
}

type VKConfig struct {
	APIBase    string `toml:"api_base"`
	APIVersion string `toml:"api_version"`
}

type AvitoConfig struct {
	APIBase string `toml:"api_base"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Generation: GenerationConfig{
			PollIntervalSeconds: 1,
			MaxPollAttempts:     45,
		},
		Dedup: DedupConfig{
			TTLHours:  24,
			SweepSpec: "@hourly",
		},
		Delivery: DeliveryConfig{
			RateLimitBackoffSeconds: 2,
		},
		VK: VKConfig{
			APIBase:    DefaultVKAPIBase,
			APIVersion: DefaultVKAPIVersion,
		},
		Avito: AvitoConfig{
			APIBase: DefaultAvitoAPIBase,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
