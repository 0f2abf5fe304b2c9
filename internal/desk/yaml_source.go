package desk

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// YAMLConfigSource reads the position set from the idasen YAML config file
// (`positions:` name -> height in meters). The file is parsed on every call
// and never cached: the idasen CLI owns the file and may rewrite it while the
// daemon runs.
type YAMLConfigSource struct {
	path string
}

// idasenConfig is the subset of the idasen config file this daemon reads
type idasenConfig struct {
	Positions map[string]float64 `yaml:"positions"`
}

// NewYAMLConfigSource creates a config source for the given file path. A
// leading "~/" is expanded against the user's home directory.
func NewYAMLConfigSource(path string) *YAMLConfigSource {
	return &YAMLConfigSource{path: expandHome(path)}
}

// Path returns the resolved config file path
func (s *YAMLConfigSource) Path() string {
	return s.path
}

// Positions reads and parses the config file
func (s *YAMLConfigSource) Positions() (map[string]float64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, oops.
			In("desk").
			With("path", s.path).
			Wrapf(err, "failed to read idasen config")
	}

	var cfg idasenConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, oops.
			In("desk").
			With("path", s.path).
			Wrapf(err, "failed to parse idasen config")
	}

	if cfg.Positions == nil {
		return nil, oops.
			In("desk").
			With("path", s.path).
			Errorf("idasen config has no positions section")
	}

	return cfg.Positions, nil
}

// expandHome resolves a leading "~/" against the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
