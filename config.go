package ssu

import (
	"time"

	"github.com/go-i2p/go-ssu/transport"
	"github.com/samber/oops"
)

// Config collects every tunable constant spec.md §6 names, resolved through
// the functional-options pattern: NewConfig applies spec.md's defaults, then
// each SetXxx option in order.
type Config struct {
	inner transport.Config
}

// NewConfig creates a Config with spec.md §6's default values and applies
// opts on top.
//
// Example usage:
//
//	cfg, err := NewConfig(SetLocalIntroKey(key), SetGCInterval(15*time.Second))
func NewConfig(opts ...func(*Config) error) (*Config, error) {
	cfg := &Config{inner: transport.DefaultConfig()}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) transportConfig() transport.Config {
	return c.inner
}

// SetLocalIntroKey sets this router's published SSU intro key, used to seal
// and open every unestablished-phase datagram addressed to us (spec.md
// §4.B table rows 1-2).
func SetLocalIntroKey(key [32]byte) func(*Config) error {
	return func(c *Config) error {
		c.inner.LocalIntroKey = key
		return nil
	}
}

// SetConnectTimeout sets the stored handshake connect timeout (default 5s).
// The transport does not read it; handshakes use session.ConnectTimeout.
func SetConnectTimeout(d time.Duration) func(*Config) error {
	return func(c *Config) error {
		if d <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("connect timeout must be positive")
		}
		c.inner.ConnectTimeout = d
		return nil
	}
}

// SetTerminationTimeout sets the stored idle termination timeout (default
// 330s). The transport does not read it; sessions use
// session.TerminationTimeout.
func SetTerminationTimeout(d time.Duration) func(*Config) error {
	return func(c *Config) error {
		if d <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("termination timeout must be positive")
		}
		c.inner.TerminationTimeout = d
		return nil
	}
}

// SetMaxHandshakeResends sets the stored handshake resend cap (default 6).
// The transport does not read it; sessions use session.MaxHandshakeResends.
func SetMaxHandshakeResends(n int) func(*Config) error {
	return func(c *Config) error {
		if n < 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("max handshake resends must be non-negative")
		}
		c.inner.MaxHandshakeResends = n
		return nil
	}
}

// SetClockSkewTolerance sets the stored signed_on_time skew tolerance
// (default ±60s). The transport does not read it; handshakes use
// session.ClockSkewTolerance.
func SetClockSkewTolerance(d time.Duration) func(*Config) error {
	return func(c *Config) error {
		if d <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("clock skew tolerance must be positive")
		}
		c.inner.ClockSkewTolerance = d
		return nil
	}
}

// SetQuickAckDelay sets the stored batched-ACK scheduling delay (default
// 200ms). The transport does not read it; ACKs use fragment.QuickAckDelay.
func SetQuickAckDelay(d time.Duration) func(*Config) error {
	return func(c *Config) error {
		if d <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("quick ack delay must be positive")
		}
		c.inner.QuickAckDelay = d
		return nil
	}
}

// SetDedupWindow sets the stored fragment de-dup window size (default 1000).
// The transport does not read it; reassembly uses fragment.DedupWindowSize.
func SetDedupWindow(n int) func(*Config) error {
	return func(c *Config) error {
		if n <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("dedup window must be positive")
		}
		c.inner.DedupWindow = n
		return nil
	}
}

// SetGCInterval overrides the periodic sweep interval (default 10s).
func SetGCInterval(d time.Duration) func(*Config) error {
	return func(c *Config) error {
		if d <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("gc interval must be positive")
		}
		c.inner.GCInterval = d
		return nil
	}
}

// SetIntroducerOfferCap sets the stored cap on how many introducers we
// publish in our own SSU address (default 3). Nothing in this module reads
// it.
func SetIntroducerOfferCap(n int) func(*Config) error {
	return func(c *Config) error {
		if n < 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("introducer offer cap must be non-negative")
		}
		c.inner.IntroducerOfferCap = n
		return nil
	}
}

// SetSessionInboxSize overrides the per-session executor inbox capacity.
func SetSessionInboxSize(n int) func(*Config) error {
	return func(c *Config) error {
		if n <= 0 {
			return oops.Code("invariant_violation").In("ssu").Errorf("session inbox size must be positive")
		}
		c.inner.SessionInboxSize = n
		return nil
	}
}
