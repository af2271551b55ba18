package packet

import "github.com/go-i2p/go-ssu/header"

// SessionDestroyed is payload type 8: no body.
type SessionDestroyed struct{}

func (SessionDestroyed) Type() header.PayloadType { return header.TypeSessionDestroyed }
