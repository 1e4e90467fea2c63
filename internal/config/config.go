package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
	DBURL        string        `mapstructure:"DB_URL"`
	GithubToken  string        `mapstructure:"GITHUB_TOKEN"`
	AuthFile     string        `mapstructure:"AUTH_FILE"`
	RequestDelay time.Duration `mapstructure:"REQUEST_DELAY"`
	HTTPAddr     string        `mapstructure:"HTTP_ADDR"`
}

// LoadConfig reads configuration from a .env file and/or environment
// variables. DB_URL is checked at connect time, not here, so commands that
// never touch the store (auth) run without one; the token is resolved
// lazily via Token so read-only commands work unauthenticated.
func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("AUTH_FILE", "auth.json")
	viper.SetDefault("REQUEST_DELAY", "1s")
	viper.SetDefault("HTTP_ADDR", ":8080")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrMissingDBURL is returned by commands that need the store when DB_URL
// was never configured.
var ErrMissingDBURL = errors.New("DB_URL is a required configuration field")

// authFile is the on-disk shape written by the auth command.
type authFile struct {
	GithubPersonalToken string `json:"github_personal_token"`
}

// Token resolves the GitHub token: the auth file first, then the
// GITHUB_TOKEN environment value. An empty result means unauthenticated
// requests, which GitHub allows at a much lower rate limit.
func (c *Config) Token() string {
	if data, err := os.ReadFile(c.AuthFile); err == nil {
		var af authFile
		if err := json.Unmarshal(data, &af); err == nil && af.GithubPersonalToken != "" {
			return af.GithubPersonalToken
		}
	}
	return c.GithubToken
}

// SaveToken writes the personal token to the auth file, preserving any
// other keys already present.
func SaveToken(path, token string) error {
	existing := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &existing)
	}
	existing["github_personal_token"] = token
	out, err := json.MarshalIndent(existing, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
