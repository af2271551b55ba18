// Package router defines the narrow external interfaces the SSU core depends
// on: router identity and signature verification, the Diffie-Hellman
// ephemeral key-pair source, read-only router-context accessors, and
// read-only net-database lookups. Concrete implementations are supplied by
// the enclosing router process; this package only names the contracts and
// provides thin adapters over github.com/go-i2p/common and
// github.com/go-i2p/crypto for callers that want a working default.
package router
