// Package packet parses and serializes the nine SSU payload types (spec.md
// §4.A) that follow the common header defined in package header. Each
// variant owns only the fields its type defines; Packet ties a Header to one
// of them. Parsing is a single forward pass that validates declared lengths
// against the remaining buffer — any mismatch is a framing error (spec.md
// §7 class 1) that the caller must treat as "drop, don't touch session
// state".
package packet
