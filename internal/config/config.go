package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Auth  AuthConfig  `mapstructure:"auth" yaml:"auth"`
	Chat  ChatConfig  `mapstructure:"chat" yaml:"chat"`
	Media MediaConfig `mapstructure:"media" yaml:"media"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// AuthConfig configures token issuing and admin accounts.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	AdminEmails []string      `mapstructure:"admin_emails" yaml:"admin_emails"`
}

// ChatConfig bounds chat traffic.
type ChatConfig struct {
	MaxMessageLength   int     `mapstructure:"max_message_length" yaml:"max_message_length"`
	HistoryLimit       int     `mapstructure:"history_limit" yaml:"history_limit"`
	SubscriberBuffer   int     `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// MediaConfig configures uploaded image storage.
type MediaConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	URLPrefix   string `mapstructure:"url_prefix" yaml:"url_prefix"`
	MaxBytes    int    `mapstructure:"max_bytes" yaml:"max_bytes"`
	MaxWidth    int    `mapstructure:"max_width" yaml:"max_width"`
	MaxHeight   int    `mapstructure:"max_height" yaml:"max_height"`
	MaxPixels   int    `mapstructure:"max_pixels" yaml:"max_pixels"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// RedisConfig enables cross-instance fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		LogLevel:          "info",
		DatabasePath:      "marketchat.db",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		Auth: AuthConfig{
			JWTSecret:   "change-me",
			JWTIssuer:   "marketchat",
			JWTAudience: "marketchat-clients",
			TokenTTL:    24 * time.Hour,
		},
		Chat: ChatConfig{
			MaxMessageLength:   2000,
			HistoryLimit:       500,
			SubscriberBuffer:   64,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
		},
		Media: MediaConfig{
			Dir:         "media",
			URLPrefix:   "/media",
			MaxBytes:    5 << 20,
			MaxWidth:    1280,
			MaxHeight:   1280,
			MaxPixels:   40_000_000,
			JPEGQuality: 80,
		},
		Redis: RedisConfig{
			Channel: "marketchat:messages",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the top-level fields settable from the command line are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
}
