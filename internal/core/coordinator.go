package core

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/domain"
	"github.com/Pranav-NJ/suraksha/internal/metrics"
)

var (
	ErrNoSession = errors.New("no active session for room")
	ErrNotChild  = errors.New("sender is not the session child")
)

// Coordinator owns the connection, room, session and alias registries.
// One mutex guards all four: every inbound message is handled as a
// single critical section, so no two messages interleave mid-handler.
// All sends inside the lock are non-blocking enqueues.
type Coordinator struct {
	mu       sync.Mutex
	peers    map[domain.ConnID]*Peer
	rooms    map[domain.RoomID]map[domain.ConnID]*Peer
	sessions map[domain.RoomID]*StreamSession
	aliases  map[domain.StreamID]domain.RoomID

	met *metrics.Metrics
}

func NewCoordinator(met *metrics.Metrics) *Coordinator {
	return &Coordinator{
		peers:    make(map[domain.ConnID]*Peer),
		rooms:    make(map[domain.RoomID]map[domain.ConnID]*Peer),
		sessions: make(map[domain.RoomID]*StreamSession),
		aliases:  make(map[domain.StreamID]domain.RoomID),
		met:      met,
	}
}

// Register assigns a fresh identity to an accepted connection. No
// handshake is required before messages are processed.
func (c *Coordinator) Register(sig SignalConnection) *Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &Peer{ID: domain.ConnID(uuid.NewString()), Signal: sig}
	c.peers[p.ID] = p
	log.Info().Str("module", "core.coordinator").Str("conn", string(p.ID)).Msg("connection registered")
	return p
}

// JoinRoom handles the modern join: assigns role and room, creates or
// reuses the session on a child join, and catches a subscriber up with
// the stored offer plus the full candidate log before room_joined.
func (c *Coordinator) JoinRoom(id domain.ConnID, room domain.RoomID, role domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	if !ok {
		return nil
	}
	c.assignLocked(p, room, role)

	if role == domain.RoleChild {
		c.adoptChildLocked(room, p)
	} else if role.IsSubscriber() {
		if s := c.sessions[room]; s != nil {
			s.Parents[id] = struct{}{}
			c.replayLocked(s, p)
		}
	}
	c.sendLocked(p.Signal, domain.RoomJoined{
		Type:    domain.TypeRoomJoined,
		RoomID:  room,
		Role:    role,
		Members: len(c.rooms[room]),
	})
	return nil
}

// ChildJoin handles the legacy child_join_room: a child join carrying
// an inline offer and a stream token. The session is indexed under both
// the room id and the token, and the offer fans out immediately.
func (c *Coordinator) ChildJoin(id domain.ConnID, room domain.RoomID, alias domain.StreamID, offer *webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	if !ok {
		return nil
	}
	c.assignLocked(p, room, domain.RoleChild)
	s := c.adoptChildLocked(room, p)
	if alias != "" {
		s.Alias = alias
		c.aliases[alias] = room
	}
	if offer != nil {
		s.Offer = offer
		c.fanOutOfferLocked(s, id)
	}
	c.sendLocked(p.Signal, domain.RoomJoined{
		Type:    domain.TypeRoomJoined,
		RoomID:  room,
		Role:    domain.RoleChild,
		Members: len(c.rooms[room]),
	})
	return nil
}

// ParentJoin handles the legacy subscriber joins (parent_join_room and
// request_child_stream). The key may be a room id or a stream token;
// clients that join before an alias mapping exists fall through to the
// key itself as the room id.
func (c *Coordinator) ParentJoin(id domain.ConnID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	if !ok {
		return nil
	}
	room := c.resolveLocked(key)
	c.assignLocked(p, room, domain.RoleParent)
	if s := c.sessions[room]; s != nil {
		s.Parents[id] = struct{}{}
		if s.Offer != nil {
			c.sendOfferLocked(s, p.Signal)
		}
	}
	c.sendLocked(p.Signal, domain.RoomJoined{
		Type:    domain.TypeRoomJoined,
		RoomID:  room,
		Role:    domain.RoleParent,
		Members: len(c.rooms[room]),
	})
	return nil
}

// Offer stores the child's session description and fans it out to the
// rest of the room in both modern and legacy shapes. Only the session's
// registered child may offer; an offer for a room with no session
// creates one with the sender as child.
func (c *Coordinator) Offer(id domain.ConnID, key string, offer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.resolveLocked(key)
	s := c.sessions[room]
	if s == nil {
		log.Info().Str("module", "core.coordinator").Str("room", string(room)).Str("conn", string(id)).Msg("session created on offer")
		if p, ok := c.peers[id]; ok {
			c.assignLocked(p, room, domain.RoleChild)
			s = c.adoptChildLocked(room, p)
		} else {
			s = newStreamSession(room, id)
			c.sessions[room] = s
			c.adoptSubscribersLocked(s)
		}
	} else if s.Child != id {
		return ErrNotChild
	}
	s.Offer = &offer
	c.fanOutOfferLocked(s, id)
	return nil
}

// Answer forwards a subscriber's description to the session child only,
// in both answer and parent_stream_answer shapes.
func (c *Coordinator) Answer(id domain.ConnID, key string, answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.resolveLocked(key)
	s := c.sessions[room]
	if s == nil {
		return ErrNoSession
	}
	child, ok := c.peers[s.Child]
	if !ok {
		return ErrNoSession
	}
	log.Debug().Str("module", "core.coordinator").Str("conn", string(id)).Str("room", string(room)).Msg("answer relayed to child")
	msg := domain.AnswerMessage{Type: domain.TypeAnswer, RoomID: room, Answer: answer}
	c.sendLocked(child.Signal, msg)
	msg.Type = domain.TypeParentStreamAnswer
	c.sendLocked(child.Signal, msg)
	return nil
}

// Candidate appends to the session's relay log and routes by sender
// role: child candidates fan out to every parent, parent candidates go
// to the child only. Relay is at-least-once; duplicates are kept.
func (c *Coordinator) Candidate(id domain.ConnID, key string, cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.resolveLocked(key)
	s := c.sessions[room]
	if s == nil {
		return ErrNoSession
	}
	from := domain.RoleParent
	if id == s.Child {
		from = domain.RoleChild
	}
	s.Candidates = append(s.Candidates, CandidateEntry{From: from, Candidate: cand})

	msg := domain.CandidateMessage{Type: domain.TypeIceCandidate, RoomID: room, From: from, Candidate: cand}
	if from == domain.RoleChild {
		for pid := range s.Parents {
			if pid == id {
				continue
			}
			if p, ok := c.peers[pid]; ok {
				c.sendLocked(p.Signal, msg)
			}
		}
		return nil
	}
	if child, ok := c.peers[s.Child]; ok {
		c.sendLocked(child.Signal, msg)
	}
	return nil
}

// StartStream broadcasts stream_started to the rest of the room.
func (c *Coordinator) StartStream(id domain.ConnID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.resolveLocked(key)
	s := c.sessions[room]
	if s == nil {
		return ErrNoSession
	}
	if s.Child != id {
		return ErrNotChild
	}
	c.broadcastLocked(room, id, domain.StreamEvent{Type: domain.TypeStreamStarted, RoomID: room})
	return nil
}

// StopStream broadcasts stream_stopped, then tears the session down:
// every subscriber is closed, the child is closed, and the session is
// removed under both its keys.
func (c *Coordinator) StopStream(id domain.ConnID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.resolveLocked(key)
	s := c.sessions[room]
	if s == nil {
		return ErrNoSession
	}
	if s.Child != id {
		return ErrNotChild
	}
	c.broadcastLocked(room, id, domain.StreamEvent{Type: domain.TypeStreamStopped, RoomID: room})
	c.teardownLocked(s, true)
	return nil
}

// Disconnect reconciles state after a transport close or error. A
// closing child ends the whole session; a closing parent is only
// dropped from the parent set.
func (c *Coordinator) Disconnect(id domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	if !ok {
		return
	}
	delete(c.peers, id)
	room := p.Room
	c.removeMemberLocked(p)
	log.Info().Str("module", "core.coordinator").Str("conn", string(id)).Str("room", string(room)).Msg("connection closed")

	s := c.sessions[room]
	if s == nil {
		return
	}
	if s.Child == id {
		c.broadcastLocked(room, id, domain.StreamEvent{
			Type:   domain.TypeStreamEnded,
			RoomID: room,
			Reason: domain.ReasonChildDisconnected,
		})
		c.teardownLocked(s, false)
		return
	}
	delete(s.Parents, id)
}

// Counts returns registry sizes for gauge refresh at scrape time.
func (c *Coordinator) Counts() (conns, rooms, sessions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers), len(c.rooms), len(c.sessions)
}

// RoomInfo is a read-only snapshot row for the ops API.
type RoomInfo struct {
	RoomID  domain.RoomID   `json:"roomId"`
	Members int             `json:"members"`
	Live    bool            `json:"live"`
	Alias   domain.StreamID `json:"streamId,omitempty"`
}

func (c *Coordinator) Rooms() []RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RoomInfo, 0, len(c.rooms))
	for room, members := range c.rooms {
		info := RoomInfo{RoomID: room, Members: len(members)}
		if s := c.sessions[room]; s != nil {
			info.Live = true
			info.Alias = s.Alias
		}
		out = append(out, info)
	}
	return out
}

// --- internals, all called with c.mu held ---

// resolveLocked maps a streamId alias to its room if one is registered,
// otherwise the key itself is the room id.
func (c *Coordinator) resolveLocked(key string) domain.RoomID {
	if room, ok := c.aliases[domain.StreamID(key)]; ok {
		return room
	}
	return domain.RoomID(key)
}

// assignLocked sets role and room on a peer, moving it between rooms if
// needed. Role reassignment is last-write-wins on purpose: a reconnect
// race looks exactly like this, so it is logged, not rejected.
func (c *Coordinator) assignLocked(p *Peer, room domain.RoomID, role domain.Role) {
	if p.Role != domain.RoleNone && p.Role != role {
		log.Warn().Str("module", "core.coordinator").Str("conn", string(p.ID)).
			Str("from", string(p.Role)).Str("to", string(role)).Msg("role reassigned by join")
	}
	if p.Room != "" && p.Room != room {
		c.leaveRoomLocked(p)
	}
	p.Role = role
	p.Room = room
	members := c.rooms[room]
	if members == nil {
		members = make(map[domain.ConnID]*Peer)
		c.rooms[room] = members
	}
	members[p.ID] = p
}

// leaveRoomLocked detaches a peer from its current room before it joins
// another one. A departing session child ends the session, matching the
// disconnect path: stale children are evicted, never left dangling.
func (c *Coordinator) leaveRoomLocked(p *Peer) {
	room := p.Room
	c.removeMemberLocked(p)
	s := c.sessions[room]
	if s == nil {
		return
	}
	if s.Child == p.ID {
		log.Warn().Str("module", "core.coordinator").Str("conn", string(p.ID)).Str("room", string(room)).Msg("session child left room")
		c.broadcastLocked(room, p.ID, domain.StreamEvent{
			Type:   domain.TypeStreamEnded,
			RoomID: room,
			Reason: domain.ReasonChildDisconnected,
		})
		c.teardownLocked(s, false)
		return
	}
	delete(s.Parents, p.ID)
}

// adoptChildLocked creates or reuses the room's session with p as
// child. A second child join replaces the session record (no merge):
// the stale child's offer and candidate log are dropped, since the
// reconnecting child re-offers. The log flags the replacement as a
// likely client reconnect race.
func (c *Coordinator) adoptChildLocked(room domain.RoomID, p *Peer) *StreamSession {
	s := c.sessions[room]
	if s == nil {
		s = newStreamSession(room, p.ID)
		c.sessions[room] = s
		log.Info().Str("module", "core.coordinator").Str("room", string(room)).Str("conn", string(p.ID)).Msg("session created")
	} else if s.Child != p.ID {
		log.Warn().Str("module", "core.coordinator").Str("room", string(room)).
			Str("old", string(s.Child)).Str("new", string(p.ID)).Msg("session child replaced")
		s.Child = p.ID
		s.Offer = nil
		s.Candidates = nil
	}
	delete(s.Parents, p.ID)
	c.adoptSubscribersLocked(s)
	return s
}

// adoptSubscribersLocked sweeps room members that joined with a
// subscriber role into the session's parent set. Joins are tolerated in
// any order: a parent may be in the room before the child shows up and
// still has to receive candidate fan-out and teardown.
func (c *Coordinator) adoptSubscribersLocked(s *StreamSession) {
	for id, member := range c.rooms[s.Room] {
		if id == s.Child || !member.Role.IsSubscriber() {
			continue
		}
		s.Parents[id] = struct{}{}
	}
}

// replayLocked catches a late-joining subscriber up: the stored offer
// first, then the candidate log in original relay order.
func (c *Coordinator) replayLocked(s *StreamSession, p *Peer) {
	if s.Offer != nil {
		c.sendOfferLocked(s, p.Signal)
	}
	for _, entry := range s.Candidates {
		c.sendLocked(p.Signal, domain.CandidateMessage{
			Type:      domain.TypeIceCandidate,
			RoomID:    s.Room,
			From:      entry.From,
			Candidate: entry.Candidate,
		})
	}
}

// sendOfferLocked delivers the stored offer to one connection in both
// the modern and legacy shapes. Both are always emitted: the
// duplication is a compatibility shim for independently-versioned
// clients, not redundancy.
func (c *Coordinator) sendOfferLocked(s *StreamSession, sig SignalConnection) {
	msg := domain.OfferMessage{Type: domain.TypeOffer, RoomID: s.Room, StreamID: s.Alias, Offer: *s.Offer}
	c.sendLocked(sig, msg)
	msg.Type = domain.TypeChildStreamOffer
	c.sendLocked(sig, msg)
}

func (c *Coordinator) fanOutOfferLocked(s *StreamSession, except domain.ConnID) {
	for id, member := range c.rooms[s.Room] {
		if id == except {
			continue
		}
		c.sendOfferLocked(s, member.Signal)
	}
}

// broadcastLocked sends to every room member except one. Connections
// whose transport is gone fail the enqueue and are skipped; membership
// is reconciled by the disconnect handler, not here.
func (c *Coordinator) broadcastLocked(room domain.RoomID, except domain.ConnID, v any) {
	for id, member := range c.rooms[room] {
		if id == except {
			continue
		}
		c.sendLocked(member.Signal, v)
	}
}

func (c *Coordinator) removeMemberLocked(p *Peer) {
	members, ok := c.rooms[p.Room]
	if ok {
		delete(members, p.ID)
		if len(members) == 0 {
			delete(c.rooms, p.Room)
		}
	}
	p.Room = ""
}

// teardownLocked ends a session: every still-open parent connection is
// closed with a normal-closure code, the child likewise when asked, and
// the session leaves the registry under both its keys in this same
// critical section so no dangling alias survives.
func (c *Coordinator) teardownLocked(s *StreamSession, closeChild bool) {
	for pid := range s.Parents {
		if p, ok := c.peers[pid]; ok {
			p.Signal.Close()
			c.removeMemberLocked(p)
		}
	}
	if child, ok := c.peers[s.Child]; ok {
		if closeChild {
			child.Signal.Close()
		}
		c.removeMemberLocked(child)
	}
	delete(c.sessions, s.Room)
	if s.Alias != "" {
		delete(c.aliases, s.Alias)
	}
	log.Info().Str("module", "core.coordinator").Str("room", string(s.Room)).Str("stream", string(s.Alias)).Msg("session torn down")
}

func (c *Coordinator) sendLocked(sig SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Msg("marshal outbound")
		if c.met != nil {
			c.met.IncRelayErrors()
		}
		return
	}
	if err := sig.TrySend(b); err != nil {
		if c.met != nil {
			c.met.IncFramesDropped()
		}
	}
}
