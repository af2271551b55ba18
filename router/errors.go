package router

import "errors"

// ErrBackpressure is returned by I2NPSink.Deliver when the upstream consumer
// cannot accept a message right now. The SSU core treats this as spec.md §7
// class 6 ("Upstream rejection"): drop the message and log a warning, never
// retry or block.
var ErrBackpressure = errors.New("router: upstream sink backpressure")
