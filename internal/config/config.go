// Package config loads gateway settings from an optional config file and
// MEDIAGATE_-prefixed environment variables, env winning.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string

	CookieFiles        map[string]string
	CredentialCacheTTL time.Duration

	CacheTTL      time.Duration
	CacheCapacity int
	RedisURL      string

	AdmissionMax    int
	AdmissionWindow time.Duration

	AttemptTimeout time.Duration
	SpawnPerSecond float64
	SpawnBurst     int

	LogLevel string
	LogFile  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("cookie_files", map[string]string{})
	v.SetDefault("credential_cache_ttl", time.Hour)
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("cache_capacity", 1000)
	v.SetDefault("redis_url", "")
	v.SetDefault("admission_max", 100)
	v.SetDefault("admission_window", 15*time.Minute)
	v.SetDefault("attempt_timeout", 30*time.Second)
	v.SetDefault("spawn_per_second", 2.0)
	v.SetDefault("spawn_burst", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// Load resolves the configuration. configPath may be "" to rely on
// defaults, environment and a mediagate.yaml in the working directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MEDIAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("mediagate")
		v.AddConfigPath(".")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:         v.GetString("listen_addr"),
		AllowedOrigins:     v.GetStringSlice("allowed_origins"),
		CookieFiles:        v.GetStringMapString("cookie_files"),
		CredentialCacheTTL: v.GetDuration("credential_cache_ttl"),
		CacheTTL:           v.GetDuration("cache_ttl"),
		CacheCapacity:      v.GetInt("cache_capacity"),
		RedisURL:           v.GetString("redis_url"),
		AdmissionMax:       v.GetInt("admission_max"),
		AdmissionWindow:    v.GetDuration("admission_window"),
		AttemptTimeout:     v.GetDuration("attempt_timeout"),
		SpawnPerSecond:     v.GetFloat64("spawn_per_second"),
		SpawnBurst:         v.GetInt("spawn_burst"),
		LogLevel:           v.GetString("log_level"),
		LogFile:            v.GetString("log_file"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.AdmissionMax <= 0 || c.AdmissionWindow <= 0 {
		return fmt.Errorf("admission limits must be positive, got %d per %s", c.AdmissionMax, c.AdmissionWindow)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt_timeout must be positive, got %s", c.AttemptTimeout)
	}
	return nil
}
