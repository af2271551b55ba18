package transport

import "time"

// Config holds the tunable constants of spec.md §6, already resolved to
// concrete values by the caller (the root ssu package applies its
// functional-options Config on top of these defaults before handing a
// transport.Config down).
type Config struct {
	ConnectTimeout      time.Duration
	TerminationTimeout  time.Duration
	MaxHandshakeResends int
	ClockSkewTolerance  time.Duration
	QuickAckDelay       time.Duration
	DedupWindow         int
	QueueDrainTimeout   time.Duration
	GCInterval          time.Duration
	IntroducerOfferCap  int
	SessionInboxSize    int
	LocalIntroKey       [32]byte
}

// DefaultConfig mirrors spec.md §6's informative defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:      5 * time.Second,
		TerminationTimeout:  330 * time.Second,
		MaxHandshakeResends: 6,
		ClockSkewTolerance:  60 * time.Second,
		QuickAckDelay:       200 * time.Millisecond,
		DedupWindow:         1000,
		QueueDrainTimeout:   5 * time.Second,
		GCInterval:          10 * time.Second,
		IntroducerOfferCap:  3,
		SessionInboxSize:    64,
	}
}
