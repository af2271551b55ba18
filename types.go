package ssu

import "github.com/go-i2p/go-ssu/router"

// Hash identifies a router by the SHA-256 digest of its RouterIdentity, the
// address space Connect, ConnectViaIntroducer, and SendMessage operate over.
type Hash = router.Hash

// Identity is a remote router's verifiable identity, as learned from NetDb.
type Identity = router.Identity

// Context is this router's own identity and signing collaborator.
type Context = router.Context

// NetDb resolves a Hash to a published RouterInfo.
type NetDb = router.NetDB

// DHPool supplies Diffie-Hellman key pairs and performs agreement for the
// handshake in §4.C.
type DHPool = router.DHPool

// I2NPSink receives I2NP messages reassembled off an established session.
type I2NPSink = router.I2NPSink
