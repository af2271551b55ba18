// Package session implements the per-peer SSU state machine: handshake
// driving for both the outbound (Alice) and inbound (Bob) roles, session-key
// derivation and selection, and the connect/termination timer bookkeeping
// that the owning transport event loop drives (spec.md §4.C, §5, §9 "Per-session
// executor"). Session itself never touches a socket or a goroutine; callers
// push inbound packets and timer ticks in, and read outbound packets and
// state transitions back out.
package session
