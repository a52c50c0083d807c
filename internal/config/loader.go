package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "MARKETCHAT"
	envConfigDefaultPath = "MARKETCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// Nested keys map to env vars with underscores, e.g. MARKETCHAT_AUTH_JWT_SECRET.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)

	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.jwt_issuer", cfg.Auth.JWTIssuer)
	v.SetDefault("auth.jwt_audience", cfg.Auth.JWTAudience)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.admin_emails", cfg.Auth.AdminEmails)

	v.SetDefault("chat.max_message_length", cfg.Chat.MaxMessageLength)
	v.SetDefault("chat.history_limit", cfg.Chat.HistoryLimit)
	v.SetDefault("chat.subscriber_buffer", cfg.Chat.SubscriberBuffer)
	v.SetDefault("chat.rate_limit_per_second", cfg.Chat.RateLimitPerSecond)
	v.SetDefault("chat.rate_limit_burst", cfg.Chat.RateLimitBurst)

	v.SetDefault("media.dir", cfg.Media.Dir)
	v.SetDefault("media.url_prefix", cfg.Media.URLPrefix)
	v.SetDefault("media.max_bytes", cfg.Media.MaxBytes)
	v.SetDefault("media.max_width", cfg.Media.MaxWidth)
	v.SetDefault("media.max_height", cfg.Media.MaxHeight)
	v.SetDefault("media.max_pixels", cfg.Media.MaxPixels)
	v.SetDefault("media.jpeg_quality", cfg.Media.JPEGQuality)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.channel", cfg.Redis.Channel)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
