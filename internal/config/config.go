// Package config loads server configuration from the environment
// (GOGALA_* variables) and an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr"`

	// PlaygroundURL is the base URL of the compile service.
	PlaygroundURL string `mapstructure:"playground_url"`

	// RedisAddr enables the cross-instance relay when nonempty.
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`

	// DatabaseURL selects the Postgres snippet store when nonempty;
	// otherwise saves go to GitHub gists.
	DatabaseURL string `mapstructure:"database_url"`
	GithubToken string `mapstructure:"github_token"`

	// MDNS announces the server on the local network.
	MDNS bool `mapstructure:"mdns"`

	Debug bool `mapstructure:"debug"`
}

// Load reads configuration with defaults, then the config file at path
// (if nonempty), then GOGALA_* environment variables, later sources
// winning.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("playground_url", "https://play.golang.org")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_channel", "gogala:room")
	v.SetDefault("database_url", "")
	v.SetDefault("github_token", "")
	v.SetDefault("mdns", false)
	v.SetDefault("debug", false)

	v.SetEnvPrefix("GOGALA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	return cfg, nil
}
