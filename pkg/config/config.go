// Package config loads engine settings from an optional YAML file and
// GRILLO_-prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Settings struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db-path"`
	// Provider selects the generative backend: "openai" or "gemini".
	Provider string `mapstructure:"provider"`
	// Model overrides the backend's default model name.
	Model string `mapstructure:"model"`
	// APIKey for the selected provider. Usually set through
	// GRILLO_API_KEY rather than the config file.
	APIKey string `mapstructure:"api-key"`
	// MaxContextMessages bounds the context window sent to the backend.
	MaxContextMessages int `mapstructure:"max-context-messages"`
	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"log-level"`
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "grillo.db"
	}
	return filepath.Join(homeDir, ".grillo", "grillo.db")
}

// Load reads settings from ./grillo.yaml or ~/.config/grillo/grillo.yaml
// plus the environment. A missing config file is not an error.
func Load() (*Settings, error) {
	v := viper.New()

	v.SetDefault("db-path", defaultDBPath())
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model", "")
	v.SetDefault("api-key", "")
	v.SetDefault("max-context-messages", 10)
	v.SetDefault("log-level", "info")

	v.SetConfigName("grillo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "grillo"))
	}

	v.SetEnvPrefix("GRILLO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal settings")
	}

	return settings, nil
}
