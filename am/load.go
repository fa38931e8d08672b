package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/teranos/lspsession/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// LSPSESSION_SESSION_ADDRESS.
const EnvPrefix = "LSPSESSION"

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the lspsession configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults only, no environment binding for an explicit file
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// system -> user -> project, env vars on top via AutomaticEnv
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// ConfigSource describes one file in the configuration cascade.
type ConfigSource struct {
	Label  string
	Path   string
	Exists bool
}

// ConfigPaths returns the configuration files in precedence order,
// lowest first. The project entry is omitted when no am.toml is found.
func ConfigPaths() []ConfigSource {
	homeDir, _ := os.UserHomeDir()

	sources := []ConfigSource{
		{Label: "SYSTEM", Path: "/etc/lspsession/am.toml"},
		{Label: "USER", Path: filepath.Join(homeDir, ".lspsession", "am.toml")},
	}
	if project := findProjectConfig(); project != "" {
		sources = append(sources, ConfigSource{Label: "PROJECT", Path: project})
	}

	for i := range sources {
		if _, err := os.Stat(sources[i].Path); err == nil {
			sources[i].Exists = true
		}
	}
	return sources
}

// ActiveConfigPath returns the highest-precedence config file that
// exists, or "" when only defaults are in effect.
func ActiveConfigPath() string {
	active := ""
	for _, src := range ConfigPaths() {
		if src.Exists {
			active = src.Path
		}
	}
	return active
}

// findProjectConfig searches for am.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges configuration files in precedence order
func mergeConfigFiles(v *viper.Viper) {
	for _, src := range ConfigPaths() {
		if !src.Exists {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(src.Path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}
		// MergeConfigMap keeps defaults for keys the file omits
		_ = v.MergeConfigMap(tempViper.AllSettings())
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return initViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return initViper().GetString(key)
}
