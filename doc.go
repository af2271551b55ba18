// Package ssu is the public facade of the SSU (Secure Semi-reliable UDP)
// transport: a UDP-based session layer I2P routers use to exchange I2NP
// messages directly, or through an introducer when either side sits behind
// a NAT.
//
// The facade wires together the header, packet, envelope, session, fragment,
// transport, peertest, and router packages behind one Config and one
// Server, following the functional-options construction style used
// throughout the rest of this module's dependency stack.
//
// Basic usage:
//
//	cfg, err := ssu.NewConfig(ssu.SetLocalIntroKey(introKey))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := ssu.NewServer(conn, cfg, routerCtx, netdb, router.DefaultDHPool{}, sink)
//	go srv.Run()
//	defer srv.Stop()
package ssu
