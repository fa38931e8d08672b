package am

import (
	"net/url"

	"github.com/teranos/lspsession/errors"
)

var validTraces = map[string]bool{"off": true, "messages": true, "verbose": true}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Session.Address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.WithHint(
			errors.Newf("session.address must be a ws:// or wss:// URL, got %q", c.Session.Address),
			"example: ws://localhost:8080/lsp")
	}

	if c.Session.RequestTimeoutMS <= 0 {
		return errors.Newf("session.request_timeout_ms must be > 0, got %d", c.Session.RequestTimeoutMS)
	}

	if !validTraces[c.Session.Trace] {
		return errors.Newf("session.trace must be one of off, messages, verbose, got %q", c.Session.Trace)
	}

	// 0 attempts = never reconnect automatically
	if c.Reconnect.MaxAttempts < 0 {
		return errors.Newf("reconnect.max_attempts must be >= 0, got %d", c.Reconnect.MaxAttempts)
	}
	if c.Reconnect.BaseDelayMS <= 0 {
		return errors.Newf("reconnect.base_delay_ms must be > 0, got %d", c.Reconnect.BaseDelayMS)
	}
	if c.Reconnect.MaxDelayMS < c.Reconnect.BaseDelayMS {
		return errors.Newf("reconnect.max_delay_ms (%d) must be >= reconnect.base_delay_ms (%d)",
			c.Reconnect.MaxDelayMS, c.Reconnect.BaseDelayMS)
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		return errors.Newf("reconnect.jitter must be in [0, 1), got %g", c.Reconnect.Jitter)
	}

	if c.Transport.WriteWaitMS <= 0 {
		return errors.Newf("transport.write_wait_ms must be > 0, got %d", c.Transport.WriteWaitMS)
	}
	if c.Transport.PingPeriodMS <= 0 || c.Transport.PingPeriodMS >= c.Transport.PongWaitMS {
		return errors.WithHint(
			errors.Newf("transport.ping_period_ms (%d) must be > 0 and < transport.pong_wait_ms (%d)",
				c.Transport.PingPeriodMS, c.Transport.PongWaitMS),
			"pings must arrive before the pong deadline expires")
	}
	if c.Transport.ReadLimitBytes <= 0 {
		return errors.Newf("transport.read_limit_bytes must be > 0, got %d", c.Transport.ReadLimitBytes)
	}

	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}

	if c.Bridge.AlertRatePerSec <= 0 {
		return errors.Newf("bridge.alert_rate_per_sec must be > 0, got %g", c.Bridge.AlertRatePerSec)
	}
	if c.Bridge.AlertBurst < 1 {
		return errors.Newf("bridge.alert_burst must be >= 1, got %d", c.Bridge.AlertBurst)
	}

	return nil
}
