package am

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/teranos/lspsession/errors"
)

// Marshal renders the configuration as am.toml.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config to TOML")
	}
	return data, nil
}
