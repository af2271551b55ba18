// Package fragment implements the reassembly and scheduling logic of
// spec.md §4.D: turning inbound packet.Fragment entries back into whole
// I2NP messages, tracking which message IDs have already been delivered,
// and deciding when an explicit-ACK/NACK-bitfield Data packet is due.
//
// Like the session package, this package owns no goroutines or sockets.
// Reassembler and AckScheduler are driven by an external caller (the
// transport package) that supplies the current time and flushes scheduled
// ACKs on its own event loop.
package fragment
