// Package transport implements spec.md §4.E, the UDP demultiplexer that
// owns the socket and the three per-router tables (sessions by endpoint,
// relay tags, and peer tests), and §4.F's wiring of the peer-test
// coordinator into real sends.
//
// Server decrypts and dispatches inbound datagrams to the right session,
// drives each session's timers and fragment reassembly from one executor
// goroutine per session, and is the only package in this module that opens
// sockets or spawns goroutines — header, packet, envelope, session,
// fragment, and peertest all stay pure and synchronous so they can be
// driven here or from tests without a network.
//
// Basic usage:
//
//	srv := transport.NewServer(conn, transport.DefaultConfig(), ctx, netdb, dhPool, sink)
//	go srv.Run()
//	defer srv.Stop()
package transport
