package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "CRMCORE"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "crmcore.db"
	defaultLogLevel           = "info"
	defaultCheckpointInterval = 256
)

// AppConfig captures runtime configuration for a device replica.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	DeviceID           string
	CheckpointInterval int
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
	configViper.SetDefault("checkpoint.interval", defaultCheckpointInterval)
	configViper.SetDefault("device.id", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		DeviceID:           strings.TrimSpace(configViper.GetString("device.id")),
		CheckpointInterval: configViper.GetInt("checkpoint.interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device.id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint.interval must be positive, got %d", c.CheckpointInterval)
	}
	return nil
}
