package ssu

import "time"

// Defaults mirror spec.md §6's informative constant table. They are the
// values NewConfig starts from before applying any SetXxx option.
const (
	DefaultConnectTimeout      = 5 * time.Second
	DefaultTerminationTimeout  = 330 * time.Second
	DefaultMaxHandshakeResends = 6
	DefaultClockSkewTolerance  = 60 * time.Second
	DefaultQuickAckDelay       = 200 * time.Millisecond
	DefaultDedupWindow         = 1000
	DefaultQueueDrainTimeout   = 5 * time.Second
	DefaultGCInterval          = 10 * time.Second
	DefaultIntroducerOfferCap  = 3
	DefaultSessionInboxSize    = 64
)
