package bspscene

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the optional on-disk session configuration naming asset
// sources. The CLI feeds it into NewSession; the library never loads it
// implicitly.
type Config struct {
	GameDirs []string `yaml:"game_dirs"`
	VPKs     []string `yaml:"vpks"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}

	return &c, nil
}

// Options translates the config into session options.
func (c *Config) Options() []Option {
	return []Option{
		WithGameDirs(c.GameDirs...),
		WithVPKs(c.VPKs...),
	}
}
