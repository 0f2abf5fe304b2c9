package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8417, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "~/.config/idasen/idasen.yaml", cfg.Desk.ConfigPath)
	assert.Equal(t, "idasen", cfg.Desk.Binary)
	assert.True(t, cfg.Nag.Enabled)
	assert.Equal(t, []string{"sit", "stand"}, cfg.Nag.TogglePositions)
	assert.Equal(t, 50, cfg.Nag.DwellMinutes["sit"])
	assert.Equal(t, 10, cfg.Nag.DwellMinutes["stand"])
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8417, Host: "127.0.0.1", Environment: "development"},
			Desk:   DeskConfig{ConfigPath: "~/.config/idasen/idasen.yaml", Binary: "idasen"},
			Nag: NagConfig{
				Enabled:         true,
				TogglePositions: []string{"sit", "stand"},
				DwellMinutes:    map[string]int{"sit": 50, "stand": 10},
			},
			Log: LogConfig{Level: "info", Environment: "development", Encoding: "console"},
		}
	}

	assert.NoError(t, validateConfig(valid()))

	cfg := valid()
	cfg.Server.Port = 0
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Desk.Binary = ""
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Nag.TogglePositions = []string{"sit"}
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Nag.TogglePositions = []string{"sit", "sit"}
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Nag.Enabled = false
	cfg.Nag.TogglePositions = nil
	assert.NoError(t, validateConfig(cfg), "toggle pair is only required while nagging")

	cfg = valid()
	cfg.Nag.DwellMinutes["sit"] = -1
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Log.Level = "verbose"
	assert.Error(t, validateConfig(cfg))

	cfg = valid()
	cfg.Log.Encoding = "xml"
	assert.Error(t, validateConfig(cfg))
}

func TestNagConfigDwellDurations(t *testing.T) {
	nag := NagConfig{
		DwellMinutes: map[string]int{"sit": 50, "stand": 10, "perch": 0},
	}

	durations := nag.DwellDurations()

	assert.Equal(t, 50*time.Minute, durations["sit"])
	assert.Equal(t, 10*time.Minute, durations["stand"])
	assert.NotContains(t, durations, "perch", "zero dwell means no nagging")
}

func TestServerConfigHelpers(t *testing.T) {
	cfg := ServerConfig{Port: 8417, Host: "127.0.0.1", Environment: "Production"}

	assert.Equal(t, "127.0.0.1:8417", cfg.GetServerAddr())
	assert.True(t, cfg.IsProduction())
}
