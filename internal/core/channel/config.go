package channel

import (
	"log/slog"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// Config tunes channel behavior.
type Config struct {
	// SendTimeout bounds a send when the caller's context has no deadline
	// (default: 60s).
	SendTimeout time.Duration

	// ReceiveBuffer is the number of envelopes of each kind buffered ahead
	// of the reader (default: 64). An envelope arriving on a full queue is
	// dropped so that an unread kind never stalls the others.
	ReceiveBuffer int

	// OnDrop, when set, is called for every envelope dropped on a full
	// receive queue.
	OnDrop func(kind domain.Kind)

	// MaxAuthenticationRoundtrips bounds AuthenticateSessionRoundtrip calls
	// per authentication (default: 3).
	MaxAuthenticationRoundtrips int

	// GlobalCommandLock serializes command round trips across every
	// channel in the process instead of per channel.
	GlobalCommandLock bool

	// Logger receives channel events (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SendTimeout:                 60 * time.Second,
		ReceiveBuffer:               64,
		MaxAuthenticationRoundtrips: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.ReceiveBuffer <= 0 {
		c.ReceiveBuffer = d.ReceiveBuffer
	}
	if c.MaxAuthenticationRoundtrips <= 0 {
		c.MaxAuthenticationRoundtrips = d.MaxAuthenticationRoundtrips
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
