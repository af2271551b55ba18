// Package envelope implements the SSU wire crypto: AES-256-CBC encryption of
// the post-MAC region of every datagram, HMAC-MD5 authentication of that
// region, and the Diffie-Hellman shared-secret post-processing that derives
// a session's AES and MAC keys (spec.md §4.B).
package envelope
