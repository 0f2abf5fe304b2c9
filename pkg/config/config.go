package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the daemon configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Desk   DeskConfig   `mapstructure:"desk"`
	Nag    NagConfig    `mapstructure:"nag"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds the loopback API server configuration
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`
}

// DeskConfig holds the desk collaborator configuration: where the idasen
// position file lives and which binary performs the physical move.
type DeskConfig struct {
	ConfigPath string `mapstructure:"config_path"`
	Binary     string `mapstructure:"binary"`
}

// NagConfig holds the position-change nagging configuration. Dwell times are
// minutes per position name; a missing or zero entry disables nagging for
// that position.
type NagConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	TogglePositions []string       `mapstructure:"toggle_positions"`
	DwellMinutes    map[string]int `mapstructure:"dwell_minutes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
	Encoding    string `mapstructure:"encoding"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("deskd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/deskd")
	viper.AddConfigPath("/etc/deskd")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file is optional; defaults plus env vars are a working setup
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults: loopback only, this daemon has no auth layer
	viper.SetDefault("server.port", 8417)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.environment", "development")

	// Desk defaults match the idasen CLI conventions
	viper.SetDefault("desk.config_path", "~/.config/idasen/idasen.yaml")
	viper.SetDefault("desk.binary", "idasen")

	// Nag defaults
	viper.SetDefault("nag.enabled", true)
	viper.SetDefault("nag.toggle_positions", []string{"sit", "stand"})
	viper.SetDefault("nag.dwell_minutes", map[string]int{"sit": 50, "stand": 10})

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.environment", "development")
	viper.SetDefault("log.encoding", "console")
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if cfg.Desk.ConfigPath == "" {
		return fmt.Errorf("desk config path cannot be empty")
	}

	if cfg.Desk.Binary == "" {
		return fmt.Errorf("desk binary cannot be empty")
	}

	if cfg.Nag.Enabled {
		if len(cfg.Nag.TogglePositions) != 2 {
			return fmt.Errorf("nagging requires exactly two toggle positions, got %d", len(cfg.Nag.TogglePositions))
		}
		if cfg.Nag.TogglePositions[0] == cfg.Nag.TogglePositions[1] {
			return fmt.Errorf("toggle positions must be distinct")
		}
	}

	for name, minutes := range cfg.Nag.DwellMinutes {
		if minutes < 0 {
			return fmt.Errorf("dwell minutes for %q cannot be negative: %d", name, minutes)
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.Log.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}

	validEncodings := []string{"json", "console"}
	if !contains(validEncodings, cfg.Log.Encoding) {
		return fmt.Errorf("invalid log encoding: %s", cfg.Log.Encoding)
	}

	return nil
}

// GetServerAddr returns the server address in host:port format
func (s *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction returns true if the environment is production
func (s *ServerConfig) IsProduction() bool {
	return strings.ToLower(s.Environment) == "production"
}

// DwellDurations converts the per-position dwell minutes into durations.
// Zero-minute entries are dropped here, so downstream code only ever sees
// positive dwell times.
func (n *NagConfig) DwellDurations() map[string]time.Duration {
	durations := make(map[string]time.Duration, len(n.DwellMinutes))
	for name, minutes := range n.DwellMinutes {
		if minutes <= 0 {
			continue
		}
		durations[name] = time.Duration(minutes) * time.Minute
	}
	return durations
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
