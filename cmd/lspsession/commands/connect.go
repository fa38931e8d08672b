package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lspsession/am"
	"github.com/teranos/lspsession/bridge"
	"github.com/teranos/lspsession/display"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/logger"
	"github.com/teranos/lspsession/metrics"
	"github.com/teranos/lspsession/session"
)

const closeTimeout = 5 * time.Second

// ConnectCmd streams diagnostics for one file until interrupted.
var ConnectCmd = &cobra.Command{
	Use:   "connect <file>",
	Short: "Open a file and stream diagnostics",
	Long: `Connect to the language server, open <file> and print diagnostics,
server logs and messages as they arrive. Saving the file sends the new
contents. The session reconnects on its own until the attempt ceiling is
reached. Press Ctrl+C to shut down.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

// CompleteCmd prints completion items at a position.
var CompleteCmd = &cobra.Command{
	Use:   "complete <file> <line> <character>",
	Short: "Request completion items at a position",
	Long:  "Open <file> and print the completion items at a one-based line and character.",
	Args:  cobra.ExactArgs(3),
	RunE:  runComplete,
}

// HoverCmd prints hover text at a position.
var HoverCmd = &cobra.Command{
	Use:   "hover <file> <line> <character>",
	Short: "Request hover text at a position",
	Long:  "Open <file> and print the hover text at a one-based line and character.",
	Args:  cobra.ExactArgs(3),
	RunE:  runHover,
}

var (
	address     string
	metricsAddr string
	waitTimeout time.Duration
)

func init() {
	for _, cmd := range []*cobra.Command{ConnectCmd, CompleteCmd, HoverCmd} {
		cmd.Flags().StringVar(&address, "address", "", "Language server WebSocket URL (default from session.address)")
	}
	ConnectCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	for _, cmd := range []*cobra.Command{CompleteCmd, HoverCmd} {
		cmd.Flags().DurationVar(&waitTimeout, "timeout", 30*time.Second, "Give up if the server is not ready in time")
		cmd.Flags().BoolP("json", "j", false, "Output the result as JSON")
	}
}

func newFileBridge(path string) (*bridge.File, error) {
	return bridge.NewFile(path, bridge.Options{
		AlertRate:  loaded.Bridge.AlertRatePerSec,
		AlertBurst: loaded.Bridge.AlertBurst,
		Logger:     logger.ComponentLogger("bridge"),
	})
}

func runConnect(cmd *cobra.Command, args []string) error {
	file, err := newFileBridge(args[0])
	if err != nil {
		return err
	}
	defer file.Close()
	if err := file.Watch(); err != nil {
		return err
	}

	rec := metrics.New()
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, rec)
		defer srv.Close()
	}

	if stop := watchConfig(); stop != nil {
		defer stop()
	}

	sess := session.New(sessionOptions(loaded, address, rec, file))
	pterm.Info.Printfln("Connecting to %s (session %s)", sessionAddress(), sess.ID())
	if err := sess.Connect(context.Background()); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return sess.Close(ctx)
}

func sessionAddress() string {
	if address != "" {
		return address
	}
	return loaded.Session.Address
}

func serveMetrics(addr string, rec *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("Metrics server failed", logger.FieldAddress, addr, logger.FieldError, err)
		}
	}()
	logger.Infow("Serving metrics", logger.FieldAddress, addr)
	return srv
}

// watchConfig reloads log verbosity when the active am.toml changes. It
// returns nil when only defaults are in effect.
func watchConfig() func() {
	path := am.ActiveConfigPath()
	if path == "" {
		return nil
	}
	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config watching disabled", logger.FieldFile, path, logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		logger.SetVerbosity(cfg.Log.Verbosity)
		return nil
	})
	watcher.Start()
	return func() { watcher.Stop() }
}

// withReadySession opens file, waits for the handshake and runs fn.
func withReadySession(args []string, fn func(ctx context.Context, sess *session.Session, file *bridge.File, line, character uint32) error) error {
	line, err := parsePosition(args[1], "line")
	if err != nil {
		return err
	}
	character, err := parsePosition(args[2], "character")
	if err != nil {
		return err
	}

	file, err := newFileBridge(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	sess := session.New(sessionOptions(loaded, address, nil, file))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		sess.Close(ctx)
	}()

	if err := sess.Connect(context.Background()); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := sess.WaitReady(ctx); err != nil {
		return err
	}
	return fn(ctx, sess, file, line, character)
}

// parsePosition converts a one-based CLI position to zero-based.
func parsePosition(arg, name string) (uint32, error) {
	n, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.WithHint(
			errors.Newf("invalid %s %q", name, arg),
			"positions are one-based integers")
	}
	return uint32(n - 1), nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	return withReadySession(args, func(ctx context.Context, sess *session.Session, file *bridge.File, line, character uint32) error {
		if caps := sess.Capabilities(); caps != nil && !caps.Completion {
			pterm.Warning.Println("Server does not provide completion")
			return nil
		}
		items, err := sess.Completion(ctx, file.URI(), line, character)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(items)
		}
		if len(items) == 0 {
			pterm.Info.Println("No completions")
			return nil
		}

		data := pterm.TableData{{"Label", "Kind", "Detail"}}
		for _, item := range items {
			data = append(data, []string{item.Label, item.Kind.String(), item.Detail})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func runHover(cmd *cobra.Command, args []string) error {
	return withReadySession(args, func(ctx context.Context, sess *session.Session, file *bridge.File, line, character uint32) error {
		hover, err := sess.Hover(ctx, file.URI(), line, character)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(hover)
		}
		if hover == nil || hover.Text == "" {
			pterm.Info.Println("No hover information")
			return nil
		}
		pterm.Println(hover.Text)
		return nil
	})
}
