package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "RENDERLINE"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "renderline.db"
	defaultLogLevel     = "info"
	defaultRedisAddr    = "localhost:6379"
	defaultRedisChannel = "video_links"
	defaultAuthDeadline = 10 * time.Second
	defaultTokenTTLMin  = 15
)

// HubConfig captures runtime configuration for the hub service.
type HubConfig struct {
	HTTPAddress   string
	SigningSecret string
	DatabasePath  string
	LogLevel      string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	AuthDeadline  time.Duration
	TokenTTL      time.Duration
}

// WatchConfig captures runtime configuration for the channel watcher CLI.
// An empty Endpoint is valid and means the watcher must never connect.
type WatchConfig struct {
	Endpoint string
	Token    string
	LogLevel string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("redis.addr", defaultRedisAddr)
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.channel", defaultRedisChannel)
	configViper.SetDefault("channel.auth_deadline_seconds", int(defaultAuthDeadline.Seconds()))
	configViper.SetDefault("channel.token_ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("channel.endpoint", "")
	configViper.SetDefault("channel.token", "")
}

// LoadHub parses hub configuration from viper.
func LoadHub(configViper *viper.Viper) (HubConfig, error) {
	cfg := HubConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		SigningSecret: configViper.GetString("channel.signing_secret"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		RedisAddr:     configViper.GetString("redis.addr"),
		RedisPassword: configViper.GetString("redis.password"),
		RedisChannel:  configViper.GetString("redis.channel"),
		AuthDeadline:  time.Duration(configViper.GetInt("channel.auth_deadline_seconds")) * time.Second,
		TokenTTL:      time.Duration(configViper.GetInt("channel.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return HubConfig{}, err
	}
	return cfg, nil
}

// LoadWatch parses watcher configuration from viper.
func LoadWatch(configViper *viper.Viper) (WatchConfig, error) {
	cfg := WatchConfig{
		Endpoint: strings.TrimSpace(configViper.GetString("channel.endpoint")),
		Token:    strings.TrimSpace(configViper.GetString("channel.token")),
		LogLevel: configViper.GetString("log.level"),
	}
	if cfg.Endpoint != "" && cfg.Token == "" {
		return WatchConfig{}, fmt.Errorf("channel.token is required when channel.endpoint is set")
	}
	return cfg, nil
}

func (c HubConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("channel.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if strings.TrimSpace(c.RedisChannel) == "" {
		return fmt.Errorf("redis.channel is required")
	}
	if c.AuthDeadline <= 0 {
		return fmt.Errorf("channel.auth_deadline_seconds must be positive")
	}
	return nil
}
