package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lspsession/am"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/reconnect"
)

func TestParsePosition(t *testing.T) {
	n, err := parsePosition("10", "line")
	require.NoError(t, err)
	assert.Equal(t, uint32(9), n)

	for _, bad := range []string{"0", "-1", "x", ""} {
		_, err := parsePosition(bad, "line")
		assert.Error(t, err, bad)
		assert.NotEmpty(t, errors.GetAllHints(err))
	}
}

func TestSessionOptionsFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[session]
address = "ws://lsp.internal:7000/lsp"
request_timeout_ms = 5000
fail_pending_on_disconnect = true

[reconnect]
max_attempts = 3
base_delay_ms = 500
`), 0o644))

	cfg, err := am.LoadFromFile(path)
	require.NoError(t, err)

	opts := sessionOptions(cfg, "", nil, nil)
	assert.Equal(t, "ws://lsp.internal:7000/lsp", opts.Address)
	assert.Equal(t, 5*time.Second, opts.RequestTimeout)
	assert.True(t, opts.FailPendingOnDisconnect)
	assert.Equal(t, reconnect.NewConfigFromSettings(3, 500, cfg.Reconnect.MaxDelayMS, cfg.Reconnect.Jitter), opts.Reconnect)
	assert.NotNil(t, opts.Open)

	opts = sessionOptions(cfg, "ws://override/lsp", nil, nil)
	assert.Equal(t, "ws://override/lsp", opts.Address)
}

func TestSetupFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nverbosity = 1\n"), 0o644))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().CountP("verbose", "v", "")
	cmd.Flags().Bool("json-log", false, "")
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--config", path, "-vvv"}))

	require.NoError(t, Setup(cmd))
	assert.Equal(t, 3, activeVerbosity)
	assert.Equal(t, 1, loaded.Log.Verbosity)
}

func TestFormatError(t *testing.T) {
	err := errors.WithHint(errors.New("gave up"), "is the language server running?")
	assert.Equal(t, "Error: gave up\nHint: is the language server running?", FormatError(err))
}
