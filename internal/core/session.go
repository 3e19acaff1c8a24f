package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/Pranav-NJ/suraksha/internal/domain"
)

// CandidateEntry is one relayed ICE candidate, kept in relay order so
// late-joining parents can be replayed the full log.
type CandidateEntry struct {
	From      domain.Role
	Candidate webrtc.ICECandidateInit
}

// StreamSession is the publisher/subscriber relationship for one room:
// exactly one child, zero or more parents. At most one per room. The
// stored offer and candidate log exist for late-join catch-up, which is
// the primary defence against join/fan-out races.
type StreamSession struct {
	Room    domain.RoomID
	Alias   domain.StreamID // secondary index key, may be empty
	Child   domain.ConnID
	Parents map[domain.ConnID]struct{}

	Offer      *webrtc.SessionDescription
	Candidates []CandidateEntry
}

func newStreamSession(room domain.RoomID, child domain.ConnID) *StreamSession {
	return &StreamSession{
		Room:    room,
		Child:   child,
		Parents: make(map[domain.ConnID]struct{}),
	}
}
