package config

import (
	"fmt"

	"github.com/danghamo/deskd/pkg/logger"
)

// Initialize loads configuration and sets up the global logger
func Initialize() (*Config, *logger.Logger, error) {
	cfg, err := Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerCfg := logger.Config{
		Level:       logger.ParseLevel(cfg.Log.Level),
		Environment: cfg.Log.Environment,
		Encoding:    cfg.Log.Encoding,
	}

	appLogger, err := logger.New(loggerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.SetGlobalLogger(appLogger)

	fields := map[string]interface{}{
		"environment":      cfg.Server.Environment,
		"server_addr":      cfg.Server.GetServerAddr(),
		"desk_config_path": cfg.Desk.ConfigPath,
		"desk_binary":      cfg.Desk.Binary,
		"nag_enabled":      cfg.Nag.Enabled,
		"log_level":        cfg.Log.Level,
	}
	appLogger.WithFields(fields).Info("Configuration and logger initialized successfully")

	return cfg, appLogger, nil
}
