// Package config загружает параметры сервера из файла и окружения
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the server runtime parameters.
type Config struct {
	ListenAddress       string        `mapstructure:"listen_address"`
	LogLevel            string        `mapstructure:"log_level"`
	DatabasePath        string        `mapstructure:"database_path"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	JWTSecretEnv        string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL      time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `mapstructure:"refresh_token_ttl"`
	RateLimitRPS        float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst      int           `mapstructure:"rate_limit_burst"`
}

const (
	defaultListenAddress       = "0.0.0.0:8080"
	defaultLogLevel            = "info"
	defaultDatabasePath        = "data/syncvault.db"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultJWTSecretEnv        = "SYNCVAULT_JWT_SECRET"
	defaultAccessTokenTTL      = 15 * time.Minute
	defaultRefreshTokenTTL     = 30 * 24 * time.Hour
	defaultRateLimitRPS        = 10
	defaultRateLimitBurst      = 20
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with SYNCVAULT_ and
// override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYNCVAULT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("database_path", defaultDatabasePath)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("jwt_secret_env", defaultJWTSecretEnv)
	v.SetDefault("access_token_ttl", defaultAccessTokenTTL.String())
	v.SetDefault("refresh_token_ttl", defaultRefreshTokenTTL.String())
	v.SetDefault("rate_limit_rps", defaultRateLimitRPS)
	v.SetDefault("rate_limit_burst", defaultRateLimitBurst)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	for _, d := range []struct {
		key  string
		dst  *time.Duration
		def  time.Duration
		name string
	}{
		{"shutdown_grace_period", &cfg.ShutdownGracePeriod, defaultShutdownGracePeriod, "shutdown_grace_period"},
		{"access_token_ttl", &cfg.AccessTokenTTL, defaultAccessTokenTTL, "access_token_ttl"},
		{"refresh_token_ttl", &cfg.RefreshTokenTTL, defaultRefreshTokenTTL, "refresh_token_ttl"},
	} {
		if !v.IsSet(d.key) {
			*d.dst = d.def
			continue
		}
		dur, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = dur
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}
	if cfg.JWTSecretEnv == "" {
		cfg.JWTSecretEnv = defaultJWTSecretEnv
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = defaultRateLimitRPS
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}

	return cfg, nil
}

// JWTSecret fetches the token signing secret from the configured
// environment variable.
func (c Config) JWTSecret() ([]byte, error) {
	env := c.JWTSecretEnv
	if env == "" {
		env = defaultJWTSecretEnv
	}
	val := strings.TrimSpace(getenv(env))
	if val == "" {
		return nil, fmt.Errorf("jwt secret env %s is empty", env)
	}
	return []byte(val), nil
}

// split out for testing.
var getenv = os.Getenv
