// Package reconnect is the connection-attempt state machine: which
// state the session's link is in, how long to wait before the next
// attempt, and when to stop trying.
package reconnect

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default reconnection settings
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Backoff
	GaveUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Backoff:
		return "backoff"
	case GaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// Config contains the backoff policy.
type Config struct {
	// MaxAttempts is how many consecutive failed attempts are retried
	// before giving up. 0 disables automatic reconnection.
	MaxAttempts int

	// BaseDelay is the unit of the exponential schedule. The first retry
	// waits 2*BaseDelay.
	BaseDelay time.Duration

	// MaxDelay caps any single delay.
	MaxDelay time.Duration

	// Jitter randomizes each delay by +/- this fraction. 0 is exact.
	Jitter float64
}

// DefaultConfig returns the default reconnection policy
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// NewConfigFromSettings creates a Config from am settings in
// milliseconds. Pass 0 for a delay to use its default.
func NewConfigFromSettings(maxAttempts, baseDelayMS, maxDelayMS int, jitter float64) Config {
	config := DefaultConfig()
	config.MaxAttempts = maxAttempts
	config.Jitter = jitter

	if baseDelayMS > 0 {
		config.BaseDelay = time.Duration(baseDelayMS) * time.Millisecond
	}
	if maxDelayMS > 0 {
		config.MaxDelay = time.Duration(maxDelayMS) * time.Millisecond
	}
	return config
}

// Observer is notified of every state change, in order.
type Observer func(from, to State)

// Controller tracks attempts and computes the delay before each retry:
// min(BaseDelay * 2^attempts, MaxDelay).
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	attempts  int
	policy    backoff.BackOff
	observers []Observer
}

// New creates a controller in the Disconnected state.
func New(cfg Config) *Controller {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 2 * cfg.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = cfg.MaxDelay
	exp.RandomizationFactor = cfg.Jitter
	exp.MaxElapsedTime = 0 // Attempt ceiling only, never a wall-clock limit
	exp.Reset()

	return &Controller{
		cfg:    cfg,
		state:  Disconnected,
		policy: backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts)),
	}
}

// Config returns the effective policy.
func (c *Controller) Config() Config {
	return c.cfg
}

// Subscribe registers an observer for state changes.
func (c *Controller) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a link is open. GaveUp reads as
// disconnected.
func (c *Controller) Connected() bool {
	return c.State() == Open
}

// Attempts returns the consecutive failed attempts since the last open.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connecting moves to Connecting before a dial. It returns false when a
// link is already connecting or open.
func (c *Controller) Connecting() bool {
	c.mu.Lock()
	if c.state == Connecting || c.state == Open {
		c.mu.Unlock()
		return false
	}
	return c.transition(Connecting)
}

// Opened records a successful open. This is the only event that resets
// the attempt counter.
func (c *Controller) Opened() {
	c.mu.Lock()
	c.attempts = 0
	c.policy.Reset()
	c.transition(Open)
}

// Dropped records a close or failed dial. It returns the delay before
// the next attempt, or ok=false once the attempt ceiling is exceeded and
// the controller has moved to GaveUp.
func (c *Controller) Dropped() (delay time.Duration, ok bool) {
	c.mu.Lock()
	c.attempts++
	delay = c.policy.NextBackOff()
	if delay == backoff.Stop {
		c.transition(GaveUp)
		return 0, false
	}
	c.transition(Backoff)
	return delay, true
}

// Disconnect moves to Disconnected without counting an attempt. Used on
// deliberate shutdown.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.transition(Disconnected)
}

// Reset clears the attempt counter and backoff schedule and moves to
// Disconnected. Used when a caller reconnects after GaveUp.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.attempts = 0
	c.policy.Reset()
	c.transition(Disconnected)
}

// transition must be called with c.mu held; it releases the lock before
// notifying observers.
func (c *Controller) transition(to State) bool {
	from := c.state
	c.state = to
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	if from != to {
		for _, o := range observers {
			o(from, to)
		}
	}
	return true
}
