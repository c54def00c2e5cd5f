package relay

import "time"

const (
	// Time allowed to write a message to the peer.
	DefaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	DefaultPongWait = 60 * time.Second

	// Maximum frame size allowed from a peer. Enough for SDP with a full
	// candidate list.
	DefaultMaxMessageBytes = 64 * 1024

	// Messages a slow connection may have queued before it is closed.
	DefaultOutboxLimit = 1024

	defaultOutboxCapacity = 16
	drainBatch            = 64
)

// Config tunes per-connection behaviour.
type Config struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	OutboxLimit     int
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.OutboxLimit <= 0 {
		c.OutboxLimit = DefaultOutboxLimit
	}
	return c
}

// pingPeriod must be less than pongWait.
func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}
