package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("connection: not connected")
	ErrStaleConnection = errors.New("connection: stale (no ping from relay)")
	ErrAlreadyClosed   = errors.New("connection: already closed")
)

// TimestampedMessage wraps a frame with the time it was read.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a signaling client.
type ClientConfig struct {
	URL string // e.g. ws://localhost:8080/

	DialTimeout time.Duration // Per attempt handshake timeout
	DialRetries int           // Extra attempts after the first
	RetryWait   time.Duration // Initial backoff between attempts

	PingTimeout  time.Duration // Max silence from the relay before the link is stale
	WriteTimeout time.Duration
	BufferSize   int // Inbound message channel capacity
}

// DefaultClientConfig returns defaults matched to the relay's heartbeat.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:  10 * time.Second,
		DialRetries:  5,
		RetryWait:    200 * time.Millisecond,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}
