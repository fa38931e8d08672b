package am

import "github.com/spf13/viper"

// Default values
const (
	DefaultAddress          = "ws://localhost:8080/lsp"
	DefaultRequestTimeoutMS = 30000
	DefaultTrace            = "off"
	DefaultClientName       = "lspsession"

	DefaultMaxAttempts = 5
	DefaultBaseDelayMS = 1000
	DefaultMaxDelayMS  = 30000

	DefaultWriteWaitMS        = 10000
	DefaultPongWaitMS         = 60000
	DefaultPingPeriodMS       = (DefaultPongWaitMS * 9) / 10
	DefaultReadLimitBytes     = 1024 * 1024
	DefaultHandshakeTimeoutMS = 10000

	DefaultAlertRatePerSec = 2.0
	DefaultAlertBurst      = 5

	// DefaultDirPermissions for ~/.lspsession
	DefaultDirPermissions = 0o755
)

// SetDefaults configures default values for all settings
func SetDefaults(v *viper.Viper) {
	v.SetDefault("session.address", DefaultAddress)
	v.SetDefault("session.request_timeout_ms", DefaultRequestTimeoutMS)
	v.SetDefault("session.trace", DefaultTrace)
	v.SetDefault("session.fail_pending_on_disconnect", false)
	v.SetDefault("session.client_name", DefaultClientName)
	v.SetDefault("session.min_server_version", "")
	v.SetDefault("session.root_uri", "")

	v.SetDefault("reconnect.max_attempts", DefaultMaxAttempts)
	v.SetDefault("reconnect.base_delay_ms", DefaultBaseDelayMS)
	v.SetDefault("reconnect.max_delay_ms", DefaultMaxDelayMS)
	v.SetDefault("reconnect.jitter", 0.0)

	v.SetDefault("transport.write_wait_ms", DefaultWriteWaitMS)
	v.SetDefault("transport.pong_wait_ms", DefaultPongWaitMS)
	v.SetDefault("transport.ping_period_ms", DefaultPingPeriodMS)
	v.SetDefault("transport.read_limit_bytes", DefaultReadLimitBytes)
	v.SetDefault("transport.handshake_timeout_ms", DefaultHandshakeTimeoutMS)

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)

	v.SetDefault("bridge.alert_rate_per_sec", DefaultAlertRatePerSec)
	v.SetDefault("bridge.alert_burst", DefaultAlertBurst)
}
