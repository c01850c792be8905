package session

import (
	"time"

	"github.com/danmuck/airlink/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-connection limits and timing.
type Config struct {
	// WriteWait bounds how long a send waits for the stream to accept a
	// message before failing with protocol.ErrWouldBlock.
	WriteWait      time.Duration
	QueueMax       int
	MaxMessageSize uint32
	ConnectTimeout time.Duration
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		WriteWait:      100 * time.Millisecond,
		QueueMax:       DefaultQueueMax,
		MaxMessageSize: frame.MaxMessageSize,
		ConnectTimeout: 5 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.QueueMax <= 0 {
		c.QueueMax = def.QueueMax
	}
	if c.MaxMessageSize == 0 || c.MaxMessageSize > frame.MaxMessageSize {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
