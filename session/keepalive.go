package session

import "github.com/go-i2p/go-ssu/packet"

// BuildKeepAlive constructs the zero-fragment Data packet spec.md §4.C's
// "Keep-alive" sends when a session has been idle for termination_timeout/2.
func BuildKeepAlive() packet.Packet {
	return packet.Packet{Body: packet.Data{}}
}

// BuildSessionDestroyed constructs a SessionDestroyed packet (spec.md §4.C,
// §5 "Cancellation"). The transport does not send one: termination-timer
// expiry and Server.Stop close sessions without a SessionDestroyed.
func BuildSessionDestroyed() packet.Packet {
	return packet.Packet{Body: packet.SessionDestroyed{}}
}
