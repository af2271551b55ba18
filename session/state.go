package session

// State is a session's position in its lifecycle (spec.md §3, §4.C).
type State int

const (
	Unknown State = iota
	Introduced
	Established
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Introduced:
		return "Introduced"
	case Established:
		return "Established"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return "Invalid"
	}
}

// Role distinguishes which side of the handshake a session plays. The names
// follow spec.md's Alice/Bob convention: Initiator dials out and drives the
// SessionRequest/SessionCreated/SessionConfirmed sequence from the client
// side, Responder accepts an inbound SessionRequest.
type Role int

const (
	RoleInitiator Role = iota // Alice
	RoleResponder             // Bob
)

func (r Role) String() string {
	if r == RoleResponder {
		return "Responder"
	}
	return "Initiator"
}

// PeerTestRole records what part, if any, a session currently plays in a
// peer-test round (spec.md §4.F). A session not involved in a peer test
// holds PeerTestNone.
type PeerTestRole int

const (
	PeerTestNone PeerTestRole = iota
	PeerTestAlice1
	PeerTestAlice2
	PeerTestBob
	PeerTestCharlie
)

func (r PeerTestRole) String() string {
	switch r {
	case PeerTestAlice1:
		return "Alice1"
	case PeerTestAlice2:
		return "Alice2"
	case PeerTestBob:
		return "Bob"
	case PeerTestCharlie:
		return "Charlie"
	default:
		return "None"
	}
}
