// Package peertest implements the Alice/Bob/Charlie reachability-test
// coordinator of spec.md §4.F. Like session and fragment, Coordinator is
// pure logic: it decides what PeerTest packets to send next and to which
// endpoint, leaving the actual envelope sealing and socket write to the
// transport package.
package peertest
