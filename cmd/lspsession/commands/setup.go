package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/teranos/lspsession/am"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/logger"
	"github.com/teranos/lspsession/metrics"
	"github.com/teranos/lspsession/reconnect"
	"github.com/teranos/lspsession/session"
	"github.com/teranos/lspsession/transport"
	"github.com/teranos/lspsession/version"
)

// Resolved by Setup for the running command.
var (
	loaded          *am.Config
	activeVerbosity int
)

// Setup loads configuration and initializes the logger. Flags override
// the configured log settings.
func Setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loaded = cfg

	jsonLog := cfg.Log.JSON
	if cmd.Flags().Changed("json-log") {
		jsonLog, _ = cmd.Flags().GetBool("json-log")
	}
	verbosity := cfg.Log.Verbosity
	if v, _ := cmd.Flags().GetCount("verbose"); v > 0 {
		verbosity = v
	}

	activeVerbosity = verbosity

	if err := logger.Initialize(jsonLog, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	if verbosity > 0 {
		logger.Logger.Debugw("Logging configured",
			"level", logger.LevelName(verbosity),
			"json", jsonLog)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return am.LoadFromFile(path)
	}
	return am.Load()
}

// sessionOptions translates configuration into session options.
func sessionOptions(cfg *am.Config, address string, rec *metrics.Recorder, bridge session.Bridge) session.Options {
	if address == "" {
		address = cfg.Session.Address
	}

	dialer := transport.NewDialer(transport.Options{
		WriteWait:        cfg.Transport.WriteWait(),
		PongWait:         cfg.Transport.PongWait(),
		PingPeriod:       cfg.Transport.PingPeriod(),
		ReadLimit:        cfg.Transport.ReadLimitBytes,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout(),
	})

	return session.Options{
		Address:        address,
		RequestTimeout: cfg.Session.RequestTimeout(),
		Trace:          cfg.Session.Trace,
		Reconnect: reconnect.NewConfigFromSettings(
			cfg.Reconnect.MaxAttempts,
			cfg.Reconnect.BaseDelayMS,
			cfg.Reconnect.MaxDelayMS,
			cfg.Reconnect.Jitter),
		FailPendingOnDisconnect: cfg.Session.FailPendingOnDisconnect,
		Open:                    dialer.OpenLink,
		Bridge:                  bridge,
		Metrics:                 rec,
		ClientName:              cfg.Session.ClientName,
		ClientVersion:           version.Get().ClientVersion(),
		RootURI:                 cfg.Session.RootURI,
		MinServerVersion:        cfg.Session.MinServerVersion,
		LogFrames:               logger.ShouldLogFrames(activeVerbosity),
	}
}

// FormatError renders an error with its hints for the terminal.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(&b, "\nHint: %s", hint)
	}
	return b.String()
}
