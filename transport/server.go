package transport

import (
	"net"
	"sync"
	"time"

	cryptorand "github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/fragment"
	"github.com/go-i2p/go-ssu/peertest"
	"github.com/go-i2p/go-ssu/router"
	"github.com/go-i2p/go-ssu/session"
)

// udpConn is the subset of *net.UDPConn the server needs, so tests can
// substitute an in-memory pipe instead of a real socket.
type udpConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// sessionEntry bundles one remote endpoint's Session with everything that
// is private to that endpoint's executor: fragment reassembly, the QuickAck
// scheduler, handshake DH material, and the bad-MAC counter of spec.md §7
// class 2.
type sessionEntry struct {
	sess        *session.Session
	reassembler *fragment.Reassembler
	ackSched    *fragment.AckScheduler
	dh          router.DHKeyPair
	haveDH      bool
	badMACCount int

	// remoteIdentityHint is the identity Alice already knows for Bob from
	// NetDB before dialing, needed to decode his SessionCreated signature
	// (spec.md §4.A "signature length depends on the signing identity").
	// Left nil on Bob's side; Alice's identity from SessionConfirmed is held
	// by the Session itself (RemoteIdentity), not here.
	remoteIdentityHint router.Identity

	issuedRelayTag uint32
	lastHandshakeSend time.Time

	inbox  chan func()
	stopCh chan struct{}
}

func newSessionEntry(sess *session.Session, inboxSize int) *sessionEntry {
	return &sessionEntry{
		sess:        sess,
		reassembler: fragment.NewReassembler(),
		ackSched:    fragment.NewAckScheduler(),
		inbox:       make(chan func(), inboxSize),
		stopCh:      make(chan struct{}),
	}
}

// Server is the UDP demultiplexer of spec.md §4.E: it owns the socket, the
// session-by-endpoint and relay-tag tables, and the peer-test coordinator of
// spec.md §4.F, and drives each session's handshake timers, keep-alive, and
// fragment reassembly from that session's own executor goroutine.
type Server struct {
	conn     udpConn
	cfg      Config
	rtrCtx   router.Context
	netdb    router.NetDB
	dhPool   router.DHPool
	idParser router.IdentityParser
	sink     router.I2NPSink
	coord    *peertest.Coordinator

	mu        sync.Mutex
	sessions  map[string]*sessionEntry // keyed by remote endpoint string
	relayTags map[uint32]*sessionEntry

	// pendingRelays tracks RelayRequests we sent as Alice, keyed by the
	// nonce we chose, so the matching RelayResponse can be paired back to
	// the target identity we originally asked Bob to introduce us to
	// (spec.md §4.F introducer path).
	pendingRelays map[uint32]pendingRelay

	nextMsgID uint32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewServer builds a Server around a live UDP socket. Callers are expected
// to call Run in a goroutine and Stop on shutdown.
func NewServer(conn *net.UDPConn, cfg Config, rtrCtx router.Context, netdb router.NetDB, dhPool router.DHPool, sink router.I2NPSink) *Server {
	return newServer(conn, cfg, rtrCtx, netdb, dhPool, sink)
}

func newServer(conn udpConn, cfg Config, rtrCtx router.Context, netdb router.NetDB, dhPool router.DHPool, sink router.I2NPSink) *Server {
	return &Server{
		conn:      conn,
		cfg:       cfg,
		rtrCtx:    rtrCtx,
		netdb:     netdb,
		dhPool:    dhPool,
		idParser:  router.DefaultIdentityParser{},
		sink:      sink,
		coord:     peertest.NewCoordinator(),
		sessions:      make(map[string]*sessionEntry),
		relayTags:     make(map[uint32]*sessionEntry),
		pendingRelays: make(map[uint32]pendingRelay),
		stopCh:        make(chan struct{}),
	}
}

// pendingRelay is what we remember between sending a RelayRequest and
// receiving the matching RelayResponse.
type pendingRelay struct {
	target    router.Hash
	createdAt time.Time
}

// Run reads datagrams until Stop is called. It is meant to be run in its own
// goroutine; Server opens no goroutines of its own beyond per-session
// executors and the GC sweep started here.
func (s *Server) Run() {
	s.wg.Add(1)
	go s.gcLoop()

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				log.WithError(err).Warn("transport: read error")
				continue
			}
		}
		raw := append([]byte(nil), buf[:n]...)
		s.handleDatagram(raw, from)
	}
}

// Stop halts Run and every session executor, closing the socket.
func (s *Server) Stop() {
	close(s.stopCh)
	s.conn.Close()

	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		close(e.stopCh)
	}
	s.wg.Wait()
}

func (s *Server) entryFor(addr *net.UDPAddr) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[addr.String()]
	return e, ok
}

// startExecutor registers entry under addr and launches its dedicated
// goroutine (spec.md §5 "single owning executor per session").
func (s *Server) startExecutor(addr *net.UDPAddr, entry *sessionEntry) {
	s.mu.Lock()
	s.sessions[addr.String()] = entry
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-entry.stopCh:
				return
			case fn := <-entry.inbox:
				fn()
			case <-ticker.C:
				s.tickEntry(addr, entry, time.Now())
			}
		}
	}()
}

// post queues fn on entry's executor. While the inbox is full the caller
// waits, for at most QueueDrainTimeout; after that fn is dropped with a
// logged warning and the session is left running (spec.md §7 class 5 / §9
// back-pressure notes). The caller, including Run's read loop, is blocked
// for that wait, and dropped messages are not counted.
func (s *Server) post(entry *sessionEntry, fn func()) {
	select {
	case entry.inbox <- fn:
	case <-time.After(s.cfg.QueueDrainTimeout):
		log.Warn("transport: session inbox saturated, dropping message")
	}
}

func (s *Server) removeEntry(addr *net.UDPAddr, entry *sessionEntry) {
	s.mu.Lock()
	if cur, ok := s.sessions[addr.String()]; ok && cur == entry {
		delete(s.sessions, addr.String())
	}
	for tag, e := range s.relayTags {
		if e == entry {
			delete(s.relayTags, tag)
		}
	}
	s.mu.Unlock()
}

func (s *Server) freshMsgID() uint32 {
	buf := make([]byte, 4)
	for {
		if _, err := cryptorand.Read(buf); err != nil {
			s.mu.Lock()
			s.nextMsgID++
			id := s.nextMsgID
			s.mu.Unlock()
			return id
		}
		id := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		if id != 0 {
			return id
		}
	}
}

