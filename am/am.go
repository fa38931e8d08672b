// Package am loads and validates lspsession configuration ("I am").
//
// Configuration lives in am.toml and is merged from system, user and
// project files, then overridden by LSPSESSION_* environment variables.
package am

import "time"

// Config is the complete lspsession configuration.
type Config struct {
	Session   SessionConfig   `mapstructure:"session" toml:"session" json:"session" yaml:"session"`
	Reconnect ReconnectConfig `mapstructure:"reconnect" toml:"reconnect" json:"reconnect" yaml:"reconnect"`
	Transport TransportConfig `mapstructure:"transport" toml:"transport" json:"transport" yaml:"transport"`
	Log       LogConfig       `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
	Bridge    BridgeConfig    `mapstructure:"bridge" toml:"bridge" json:"bridge" yaml:"bridge"`
}

// SessionConfig configures the language server session.
type SessionConfig struct {
	Address                 string `mapstructure:"address" toml:"address" json:"address" yaml:"address"`
	RequestTimeoutMS        int    `mapstructure:"request_timeout_ms" toml:"request_timeout_ms" json:"request_timeout_ms" yaml:"request_timeout_ms"`
	Trace                   string `mapstructure:"trace" toml:"trace" json:"trace" yaml:"trace"`
	FailPendingOnDisconnect bool   `mapstructure:"fail_pending_on_disconnect" toml:"fail_pending_on_disconnect" json:"fail_pending_on_disconnect" yaml:"fail_pending_on_disconnect"`
	ClientName              string `mapstructure:"client_name" toml:"client_name" json:"client_name" yaml:"client_name"`
	MinServerVersion        string `mapstructure:"min_server_version" toml:"min_server_version" json:"min_server_version" yaml:"min_server_version"`
	RootURI                 string `mapstructure:"root_uri" toml:"root_uri" json:"root_uri" yaml:"root_uri"`
}

// ReconnectConfig configures the reconnection backoff.
type ReconnectConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts" toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	BaseDelayMS int     `mapstructure:"base_delay_ms" toml:"base_delay_ms" json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS  int     `mapstructure:"max_delay_ms" toml:"max_delay_ms" json:"max_delay_ms" yaml:"max_delay_ms"`
	Jitter      float64 `mapstructure:"jitter" toml:"jitter" json:"jitter" yaml:"jitter"`
}

// TransportConfig configures WebSocket keepalive and limits.
type TransportConfig struct {
	WriteWaitMS        int   `mapstructure:"write_wait_ms" toml:"write_wait_ms" json:"write_wait_ms" yaml:"write_wait_ms"`
	PongWaitMS         int   `mapstructure:"pong_wait_ms" toml:"pong_wait_ms" json:"pong_wait_ms" yaml:"pong_wait_ms"`
	PingPeriodMS       int   `mapstructure:"ping_period_ms" toml:"ping_period_ms" json:"ping_period_ms" yaml:"ping_period_ms"`
	ReadLimitBytes     int64 `mapstructure:"read_limit_bytes" toml:"read_limit_bytes" json:"read_limit_bytes" yaml:"read_limit_bytes"`
	HandshakeTimeoutMS int   `mapstructure:"handshake_timeout_ms" toml:"handshake_timeout_ms" json:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity" json:"verbosity" yaml:"verbosity"`
}

// BridgeConfig configures the console bridge.
type BridgeConfig struct {
	AlertRatePerSec float64 `mapstructure:"alert_rate_per_sec" toml:"alert_rate_per_sec" json:"alert_rate_per_sec" yaml:"alert_rate_per_sec"`
	AlertBurst      int     `mapstructure:"alert_burst" toml:"alert_burst" json:"alert_burst" yaml:"alert_burst"`
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// RequestTimeout returns the per-request deadline.
func (c SessionConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// BaseDelay returns the backoff base.
func (c ReconnectConfig) BaseDelay() time.Duration { return ms(c.BaseDelayMS) }

// MaxDelay returns the backoff ceiling.
func (c ReconnectConfig) MaxDelay() time.Duration { return ms(c.MaxDelayMS) }

func (c TransportConfig) WriteWait() time.Duration        { return ms(c.WriteWaitMS) }
func (c TransportConfig) PongWait() time.Duration         { return ms(c.PongWaitMS) }
func (c TransportConfig) PingPeriod() time.Duration       { return ms(c.PingPeriodMS) }
func (c TransportConfig) HandshakeTimeout() time.Duration { return ms(c.HandshakeTimeoutMS) }
