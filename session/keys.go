package session

import "github.com/go-i2p/go-ssu/envelope"

// introKeyPair presents a long-lived intro key as an envelope.Keys value: the
// same 32 bytes serve as both the AES and MAC key before a session key
// exists (spec.md §4.B key-selection table).
func introKeyPair(k [32]byte) envelope.Keys {
	return envelope.Keys{AES: k, MAC: k}
}

// EncryptKeys returns the keys this session must use to seal an outbound
// datagram right now, per spec.md §4.B's key-selection table. The two table
// rows that don't follow from session state alone are not chosen here: the
// transport seals a RelayResponse to a sessionless endpoint under Alice's
// intro key directly, and a RelayIntro forwarded to Charlie goes out under
// the Charlie-facing session's own EncryptKeys (its established keys).
func (s *Session) EncryptKeys() envelope.Keys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encryptKeysLocked()
}

func (s *Session) encryptKeysLocked() envelope.Keys {
	if s.state == Established {
		return s.establishedKeys
	}
	// Table rows 1 and 2: whichever side we are, an unestablished handshake
	// message is sealed under the other party's intro key.
	return introKeyPair(s.remoteIntroKey)
}

// DecryptKeys mirrors EncryptKeys for inbound validation: try the session key
// if established, otherwise the local router's own intro key (spec.md §4.B
// "Validation inverts this").
func (s *Session) DecryptKeys(localIntroKey [32]byte) envelope.Keys {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Established {
		return s.establishedKeys
	}
	return introKeyPair(localIntroKey)
}
