package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/domain"
)

func (ctl *SignalWSController) handleJoinRoom(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
		Role   string `json:"role"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.RoomID == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if !ctl.limiter.Allow(id) {
		ctl.sendError(conn, "too many join attempts")
		return
	}
	role := domain.ParseRole(p.Role)
	log.Info().Str("module", "signal").Str("conn", string(id)).
		Str("room", p.RoomID).Str("role", string(role)).Msg("join")
	_ = ctl.Coord.JoinRoom(id, domain.RoomID(p.RoomID), role)
}

// handleChildJoin is the legacy child join: offer and stream token
// arrive inline, and the session is indexed under the token as well.
func (ctl *SignalWSController) handleChildJoin(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type childJoinPayload struct {
		Type     string                     `json:"type"`
		RoomID   string                     `json:"roomId"`
		StreamID string                     `json:"streamId"`
		Offer    *webrtc.SessionDescription `json:"offer"`
	}
	var p childJoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad child_join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.RoomID == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if !ctl.limiter.Allow(id) {
		ctl.sendError(conn, "too many join attempts")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).
		Str("room", p.RoomID).Str("stream", p.StreamID).Msg("legacy child join")
	_ = ctl.Coord.ChildJoin(id, domain.RoomID(p.RoomID), domain.StreamID(p.StreamID), p.Offer)
}

// handleParentJoin is the legacy subscriber join; roomId wins over
// streamId when both are present.
func (ctl *SignalWSController) handleParentJoin(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type parentJoinPayload struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		StreamID string `json:"streamId"`
	}
	var p parentJoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad parent_join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key := p.RoomID
	if key == "" {
		key = p.StreamID
	}
	if key == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if !ctl.limiter.Allow(id) {
		ctl.sendError(conn, "too many join attempts")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("key", key).Msg("legacy parent join")
	_ = ctl.Coord.ParentJoin(id, key)
}

// handleRequestChildStream joins via a stream token directly, with no
// prior room knowledge on the client's side.
func (ctl *SignalWSController) handleRequestChildStream(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type requestPayload struct {
		Type     string `json:"type"`
		StreamID string `json:"streamId"`
	}
	var p requestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad request_child_stream payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.StreamID == "" {
		ctl.sendError(conn, "missing streamId")
		return
	}
	if !ctl.limiter.Allow(id) {
		ctl.sendError(conn, "too many join attempts")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("stream", p.StreamID).Msg("request child stream")
	_ = ctl.Coord.ParentJoin(id, p.StreamID)
}
