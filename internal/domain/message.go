package domain

import "github.com/pion/webrtc/v4"

// Message type discriminators. Inbound and outbound messages are flat
// JSON objects with at least a "type" field; SDP and ICE payloads are
// relayed verbatim, never applied to a PeerConnection on this server.
const (
	// inbound
	TypeJoinRoom           = "join_room"
	TypeChildJoinRoom      = "child_join_room"
	TypeParentJoinRoom     = "parent_join_room"
	TypeRequestChildStream = "request_child_stream"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeIceCandidate       = "ice_candidate"
	TypeStartStream        = "start_stream"
	TypeStopStream         = "stop_stream"
	TypePing               = "ping"

	// outbound
	TypeRoomJoined         = "room_joined"
	TypeChildStreamOffer   = "child_stream_offer"
	TypeParentStreamAnswer = "parent_stream_answer"
	TypeStreamStarted      = "stream_started"
	TypeStreamStopped      = "stream_stopped"
	TypeStreamEnded        = "stream_ended"
	TypePong               = "pong"
	TypeError              = "error"
)

const ReasonChildDisconnected = "child_disconnected"

type RoomJoined struct {
	Type    string `json:"type"`
	RoomID  RoomID `json:"roomId"`
	Role    Role   `json:"role"`
	Members int    `json:"members"`
}

// OfferMessage carries a session description toward subscribers. The
// same struct serves the modern "offer" and legacy "child_stream_offer"
// shapes; legacy clients key on streamId.
type OfferMessage struct {
	Type     string                    `json:"type"`
	RoomID   RoomID                    `json:"roomId"`
	StreamID StreamID                  `json:"streamId,omitempty"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

// AnswerMessage carries a subscriber's description toward the child,
// in both "answer" and legacy "parent_stream_answer" shapes.
type AnswerMessage struct {
	Type   string                    `json:"type"`
	RoomID RoomID                    `json:"roomId"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type CandidateMessage struct {
	Type      string                  `json:"type"`
	RoomID    RoomID                  `json:"roomId"`
	From      Role                    `json:"from,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// StreamEvent announces start/stop/end of the broadcast in a room.
type StreamEvent struct {
	Type   string `json:"type"`
	RoomID RoomID `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

type Pong struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
