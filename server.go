package ssu

import (
	"net"

	"github.com/go-i2p/go-ssu/transport"
)

// Server is the public handle onto a running SSU endpoint: one UDP socket,
// its session tables, and its per-session executors (spec.md §4.E).
type Server struct {
	inner *transport.Server
}

// NewServer builds a Server bound to conn, using cfg's resolved tunables and
// the given router collaborators. Callers must call Run (typically in its
// own goroutine) to start processing datagrams.
func NewServer(conn *net.UDPConn, cfg *Config, rtrCtx Context, netdb NetDb, dhPool DHPool, sink I2NPSink) *Server {
	return &Server{inner: transport.NewServer(conn, cfg.transportConfig(), rtrCtx, netdb, dhPool, sink)}
}

// Run reads and dispatches datagrams until Stop is called. It blocks; run it
// in its own goroutine.
func (s *Server) Run() {
	s.inner.Run()
}

// Stop halts Run and every session's executor, closing the underlying
// socket.
func (s *Server) Stop() {
	s.inner.Stop()
}

// Connect starts an outbound handshake to the router identified by hash,
// resolved through NetDb (spec.md §4.C).
func (s *Server) Connect(hash Hash) error {
	return s.inner.Connect(hash)
}

// ConnectViaIntroducer asks bob to relay an introduction to target, for use
// when target has no directly reachable SSU address (spec.md §4.F).
func (s *Server) ConnectViaIntroducer(target Hash, bob Hash, relayTag uint32) error {
	return s.inner.ConnectViaIntroducer(target, bob, relayTag)
}

// SendMessage fragments and sends msg as an I2NP frame over the established
// session to hash (spec.md §4.D).
func (s *Server) SendMessage(hash Hash, msg []byte, sourcePort, destPort uint16, proto uint8) error {
	return s.inner.SendMessage(hash, msg, sourcePort, destPort, proto)
}
