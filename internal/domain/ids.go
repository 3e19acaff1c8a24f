// Package domain contains identifiers and wire types without logic.
package domain

type (
	// ConnID identifies one accepted transport connection.
	ConnID string
	// RoomID is the caller-supplied room key, treated as an opaque string.
	RoomID string
	// StreamID is a secondary lookup key (stream token) some legacy
	// clients use instead of the room id.
	StreamID string
)

type Role string

const (
	RoleNone   Role = ""
	RoleChild  Role = "child"
	RoleParent Role = "parent"
	RoleViewer Role = "viewer"
)

// ParseRole maps a client-supplied role string, defaulting unknown
// values to viewer so a drifted client still gets the subscriber path.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleChild:
		return RoleChild
	case RoleParent:
		return RoleParent
	default:
		return RoleViewer
	}
}

// IsSubscriber reports whether the role receives rather than publishes.
func (r Role) IsSubscriber() bool {
	return r == RoleParent || r == RoleViewer
}
