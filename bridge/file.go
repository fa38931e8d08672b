// Package bridge adapts a session to a file on disk and a terminal.
package bridge

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/logger"
	"github.com/teranos/lspsession/reconnect"
	"github.com/teranos/lspsession/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultAlertRate  = 2.0
	DefaultAlertBurst = 5

	debouncePeriod = 100 * time.Millisecond
)

var languageIDs = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sh":   "shellscript",
}

// LanguageID guesses the LSP language identifier from a file extension.
func LanguageID(path string) string {
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}

// FileURI returns the file:// URI for an absolute path.
func FileURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// Options configures a File bridge.
type Options struct {
	// LanguageID overrides detection from the extension.
	LanguageID string
	// AlertRate and AlertBurst throttle alerts shown on the console.
	AlertRate  float64
	AlertBurst int
	// Out receives console output. Defaults to os.Stdout.
	Out    io.Writer
	Logger *zap.SugaredLogger
}

// File is a Bridge for one document on disk that prints everything the
// server says to a terminal. Saving the file sends a full-text change.
type File struct {
	path       string
	uri        string
	languageID string
	out        io.Writer
	logger     *zap.SugaredLogger
	alerts     *rate.Limiter
	dropped    atomic.Int64

	mu        sync.Mutex
	version   int32
	text      string
	listeners []func(session.ContentChange)
	outMu     sync.Mutex

	watcher       *fsnotify.Watcher
	debounceTimer *time.Timer
	done          chan struct{}
	stopOnce      sync.Once
}

// NewFile reads path and returns a bridge at version 1.
func NewFile(path string, opts Options) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "failed to read %s", abs),
			"the document to open must exist")
	}

	if opts.LanguageID == "" {
		opts.LanguageID = LanguageID(abs)
	}
	if opts.AlertRate <= 0 {
		opts.AlertRate = DefaultAlertRate
	}
	if opts.AlertBurst <= 0 {
		opts.AlertBurst = DefaultAlertBurst
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("bridge")
	}

	return &File{
		path:       filepath.Clean(abs),
		uri:        FileURI(abs),
		languageID: opts.LanguageID,
		out:        opts.Out,
		logger:     opts.Logger.With(logger.FieldFile, abs),
		alerts:     rate.NewLimiter(rate.Limit(opts.AlertRate), opts.AlertBurst),
		version:    1,
		text:       string(data),
		done:       make(chan struct{}),
	}, nil
}

// URI returns the document URI.
func (f *File) URI() string {
	return f.uri
}

// Path returns the absolute file path.
func (f *File) Path() string {
	return f.path
}

// Version returns the current document version.
func (f *File) Version() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

// DroppedAlerts returns how many alerts were throttled.
func (f *File) DroppedAlerts() int64 {
	return f.dropped.Load()
}

// DocumentSnapshot implements session.Bridge.
func (f *File) DocumentSnapshot() (session.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Document{
		URI:        f.uri,
		LanguageID: f.languageID,
		Version:    f.version,
		Text:       f.text,
	}, true
}

// OnContentChange implements session.Bridge.
func (f *File) OnContentChange(fn func(session.ContentChange)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Reload re-reads the file. When the contents changed the version is
// bumped and listeners receive the new text.
func (f *File) Reload() (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return false, errors.Wrapf(err, "failed to re-read %s", f.path)
	}

	f.mu.Lock()
	if string(data) == f.text {
		f.mu.Unlock()
		return false, nil
	}
	f.version++
	f.text = string(data)
	change := session.ContentChange{URI: f.uri, Version: f.version, Text: f.text}
	listeners := make([]func(session.ContentChange), len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	f.logger.Debugw("Document changed on disk",
		logger.FieldVersion, change.Version,
		logger.FieldSize, len(change.Text))
	for _, fn := range listeners {
		fn(change)
	}
	return true, nil
}

// Watch starts forwarding saves of the file as content changes.
func (f *File) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	// Watch the directory: editors replace files on save
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", f.path)
	}
	f.watcher = watcher
	go f.watchLoop()
	return nil
}

func (f *File) watchLoop() {
	for {
		select {
		case <-f.done:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f.scheduleReload()
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warnw("File watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload coalesces the bursts of events a single save produces.
func (f *File) scheduleReload() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.debounceTimer != nil {
		f.debounceTimer.Stop()
	}
	f.debounceTimer = time.AfterFunc(debouncePeriod, func() {
		if _, err := f.Reload(); err != nil {
			f.logger.Warnw("Reload failed", logger.FieldError, err)
		}
	})
}

// Close stops watching. It is idempotent.
func (f *File) Close() error {
	var err error
	f.stopOnce.Do(func() {
		close(f.done)
		f.mu.Lock()
		if f.debounceTimer != nil {
			f.debounceTimer.Stop()
		}
		f.mu.Unlock()
		if f.watcher != nil {
			err = f.watcher.Close()
		}
	})
	return err
}

func (f *File) print(s string) {
	f.outMu.Lock()
	defer f.outMu.Unlock()
	fmt.Fprint(f.out, s)
}

// OnDiagnostics implements session.Bridge.
func (f *File) OnDiagnostics(uri string, markers []session.Marker) {
	if len(markers) == 0 {
		f.print(pterm.Success.Sprintfln("%s: no problems", displayName(uri)))
		return
	}

	data := pterm.TableData{{"Severity", "Line", "Col", "Message", "Source"}}
	for _, m := range markers {
		data = append(data, []string{
			severityLabel(m.Severity),
			fmt.Sprint(m.StartLineNumber),
			fmt.Sprint(m.StartColumn),
			m.Message,
			m.Source,
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		f.logger.Warnw("Failed to render diagnostics", logger.FieldError, err)
		return
	}
	f.print(pterm.Info.Sprintfln("%s: %d problem(s)", displayName(uri), len(markers)))
	f.print(table + "\n")
}

func severityLabel(s session.Severity) string {
	switch s {
	case session.SeverityError:
		return pterm.Red("error")
	case session.SeverityWarning:
		return pterm.Yellow("warning")
	case session.SeverityInfo:
		return pterm.LightCyan("info")
	default:
		return pterm.Gray("hint")
	}
}

func displayName(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return filepath.Base(u.Path)
	}
	return uri
}

// OnLog implements session.Bridge.
func (f *File) OnLog(text string, level session.LogLevel) {
	if level == session.LevelError {
		f.print(pterm.Error.Sprintln(text))
		return
	}
	f.print(pterm.Info.Sprintln(text))
}

// OnAlert implements session.Bridge. Alerts beyond the configured rate
// are dropped and counted.
func (f *File) OnAlert(text string, urgent bool) {
	if !f.alerts.Allow() {
		n := f.dropped.Add(1)
		f.logger.Debugw("Alert throttled", logger.FieldCount, n)
		return
	}
	if urgent {
		f.print(pterm.Warning.Sprintln(text))
		return
	}
	f.print(pterm.Info.Sprintln(text))
}

// OnStatus implements session.StatusSink.
func (f *File) OnStatus(st session.Status) {
	switch {
	case st.Connection == reconnect.GaveUp:
		msg := fmt.Sprintf("Gave up connecting after %d attempts", st.Attempt)
		if st.Err != nil {
			msg += ": " + st.Err.Error()
		}
		f.print(pterm.Error.Sprintln(msg))
	case st.Connection == reconnect.Backoff:
		f.print(pterm.Warning.Sprintfln("Disconnected, reconnecting in %s (attempt %d)", st.Delay, st.Attempt))
	case st.Session == session.Ready:
		f.print(pterm.Success.Sprintln("Connected, session ready"))
	case st.Err != nil:
		f.print(pterm.Error.Sprintln(st.Err.Error()))
	}
}
