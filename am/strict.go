package am

import (
	"github.com/BurntSushi/toml"
	"github.com/teranos/lspsession/errors"
)

// CheckUnknownKeys decodes an am.toml strictly and returns the keys that
// no configuration field accepts. Viper silently ignores these, so a
// misspelled key would otherwise fall back to its default unnoticed.
func CheckUnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	undecoded := md.Undecoded()
	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}
	return keys, nil
}
