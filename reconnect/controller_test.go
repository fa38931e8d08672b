package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelaySequence(t *testing.T) {
	c := New(DefaultConfig())
	require.True(t, c.Connecting())
	c.Opened()

	want := []time.Duration{
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for i, w := range want {
		delay, ok := c.Dropped()
		require.True(t, ok, "attempt %d", i+1)
		assert.Equal(t, w, delay, "attempt %d", i+1)
		assert.Equal(t, Backoff, c.State())
		assert.Equal(t, i+1, c.Attempts())
		require.True(t, c.Connecting())
	}

	// sixth consecutive failure exceeds the ceiling
	delay, ok := c.Dropped()
	assert.False(t, ok)
	assert.Zero(t, delay)
	assert.Equal(t, GaveUp, c.State())
	assert.False(t, c.Connected())

	// no further automatic attempts
	_, ok = c.Dropped()
	assert.False(t, ok)
}

func TestOpenedResetsAttempts(t *testing.T) {
	c := New(DefaultConfig())
	c.Connecting()
	c.Opened()

	for i := 0; i < 3; i++ {
		_, ok := c.Dropped()
		require.True(t, ok)
		c.Connecting()
	}
	assert.Equal(t, 3, c.Attempts())

	c.Opened()
	assert.Equal(t, 0, c.Attempts())
	assert.True(t, c.Connected())

	delay, ok := c.Dropped()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestConnectingDoesNotResetAttempts(t *testing.T) {
	c := New(DefaultConfig())
	c.Connecting()
	_, _ = c.Dropped()
	c.Connecting()
	assert.Equal(t, 1, c.Attempts())
	assert.False(t, c.Connected())
}

func TestConnectingWhileActive(t *testing.T) {
	c := New(DefaultConfig())
	assert.True(t, c.Connecting())
	assert.False(t, c.Connecting())
	c.Opened()
	assert.False(t, c.Connecting())
}

func TestResetAfterGaveUp(t *testing.T) {
	c := New(Config{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: 30 * time.Second})
	c.Connecting()
	_, ok := c.Dropped()
	require.True(t, ok)
	c.Connecting()
	_, ok = c.Dropped()
	require.False(t, ok)
	require.Equal(t, GaveUp, c.State())

	c.Reset()
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, 0, c.Attempts())

	require.True(t, c.Connecting())
	delay, ok := c.Dropped()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestZeroAttemptsNeverRetries(t *testing.T) {
	c := New(Config{MaxAttempts: 0})
	c.Connecting()
	c.Opened()
	_, ok := c.Dropped()
	assert.False(t, ok)
	assert.Equal(t, GaveUp, c.State())
}

func TestJitterStaysInBounds(t *testing.T) {
	c := New(Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.5})
	delay, ok := c.Dropped()
	require.True(t, ok)
	assert.GreaterOrEqual(t, delay, time.Second)
	assert.LessOrEqual(t, delay, 3*time.Second)
}

func TestObserver(t *testing.T) {
	c := New(DefaultConfig())
	type change struct{ from, to State }
	var changes []change
	c.Subscribe(func(from, to State) {
		changes = append(changes, change{from, to})
	})

	c.Connecting()
	c.Opened()
	c.Dropped()
	c.Connecting()
	c.Disconnect()

	assert.Equal(t, []change{
		{Disconnected, Connecting},
		{Connecting, Open},
		{Open, Backoff},
		{Backoff, Connecting},
		{Connecting, Disconnected},
	}, changes)
}

func TestNewConfigFromSettings(t *testing.T) {
	cfg := NewConfigFromSettings(3, 0, 10000, 0.1)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, cfg.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 0.1, cfg.Jitter)
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Open:         "open",
		Backoff:      "backoff",
		GaveUp:       "gave_up",
		State(99):    "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}
