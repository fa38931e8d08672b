package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lspsession/errors"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "ws://localhost:8080/lsp", cfg.Session.Address)
	assert.Equal(t, 30*time.Second, cfg.Session.RequestTimeout())
	assert.Equal(t, "off", cfg.Session.Trace)
	assert.False(t, cfg.Session.FailPendingOnDisconnect)

	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Reconnect.BaseDelay())
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay())
	assert.Zero(t, cfg.Reconnect.Jitter)

	assert.Equal(t, 54*time.Second, cfg.Transport.PingPeriod())
	assert.Equal(t, int64(1024*1024), cfg.Transport.ReadLimitBytes)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[session]
address = "wss://lsp.example.com/ws"
request_timeout_ms = 5000

[reconnect]
max_attempts = 2
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://lsp.example.com/ws", cfg.Session.Address)
	assert.Equal(t, 5*time.Second, cfg.Session.RequestTimeout())
	assert.Equal(t, 2, cfg.Reconnect.MaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultBaseDelayMS, cfg.Reconnect.BaseDelayMS)
	assert.Equal(t, "off", cfg.Session.Trace)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LSPSESSION_SESSION_ADDRESS", "ws://10.0.0.1:9000/lsp")
	t.Setenv("LSPSESSION_RECONNECT_MAX_ATTEMPTS", "9")
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.1:9000/lsp", cfg.Session.Address)
	assert.Equal(t, 9, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "ws://10.0.0.1:9000/lsp", GetString("session.address"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero attempts is valid (no reconnect)", func(c *Config) { c.Reconnect.MaxAttempts = 0 }, false},
		{"http scheme rejected", func(c *Config) { c.Session.Address = "http://localhost:8080/lsp" }, true},
		{"missing host rejected", func(c *Config) { c.Session.Address = "ws:///lsp" }, true},
		{"zero timeout rejected", func(c *Config) { c.Session.RequestTimeoutMS = 0 }, true},
		{"unknown trace rejected", func(c *Config) { c.Session.Trace = "loud" }, true},
		{"negative attempts rejected", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, true},
		{"max below base rejected", func(c *Config) { c.Reconnect.MaxDelayMS = 500 }, true},
		{"jitter of one rejected", func(c *Config) { c.Reconnect.Jitter = 1 }, true},
		{"jitter of half is valid", func(c *Config) { c.Reconnect.Jitter = 0.5 }, false},
		{"ping after pong deadline rejected", func(c *Config) { c.Transport.PingPeriodMS = c.Transport.PongWaitMS }, true},
		{"zero read limit rejected", func(c *Config) { c.Transport.ReadLimitBytes = 0 }, true},
		{"zero alert burst rejected", func(c *Config) { c.Bridge.AlertBurst = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_AddressHint(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Session.Address = "localhost:8080"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "ws://localhost:8080/lsp")
}

func TestCheckUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[session]
address = "ws://localhost:8080/lsp"
request_timout_ms = 100

[reconect]
max_attempts = 3
`), 0o644))

	keys, err := CheckUnknownKeys(path)
	require.NoError(t, err)
	assert.Contains(t, keys, "session.request_timout_ms")
	assert.Contains(t, keys, "reconect")
	assert.NotContains(t, keys, "session.address")
}

func TestCheckUnknownKeys_Syntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session\n"), 0o644))

	_, err := CheckUnknownKeys(path)
	assert.Error(t, err)
}

func TestMarshal_RoundTripsThroughViper(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Reconnect.MaxAttempts = 7

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_attempts = 7")

	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
