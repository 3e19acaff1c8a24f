package core

import "github.com/Pranav-NJ/suraksha/internal/domain"

// Frame is one serialized JSON message.
type Frame []byte

// SignalConnection abstracts the messaging transport for one peer.
// Owned by the adapter; the adapter must Close() it. TrySend never
// blocks: it enqueues or fails, so the coordinator can fan out while
// holding its lock.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Peer is the coordinator's record of one accepted connection.
// Role and Room stay unset until the first join-type message.
type Peer struct {
	ID     domain.ConnID
	Role   domain.Role
	Room   domain.RoomID
	Signal SignalConnection
}
