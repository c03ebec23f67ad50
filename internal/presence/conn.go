package presence

import "github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"

// Conn is one bidirectional message transport session.
//
// Send must never block: it is called while the registry lock is held.
// It reports whether the message was accepted for delivery.
type Conn interface {
	ID() string
	Send(msg protocol.ServerMessage) bool
	Open() bool
}
