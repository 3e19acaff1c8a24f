package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/domain"
)

// relayKey picks the lookup key for alias-or-room resolution.
func relayKey(roomID, streamID string) string {
	if roomID != "" {
		return roomID
	}
	return streamID
}

func (ctl *SignalWSController) handleOffer(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type offerPayload struct {
		Type     string                    `json:"type"`
		RoomID   string                    `json:"roomId"`
		StreamID string                    `json:"streamId"`
		Offer    webrtc.SessionDescription `json:"offer"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key := relayKey(p.RoomID, p.StreamID)
	if key == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if p.Offer.SDP == "" {
		ctl.sendError(conn, "missing offer")
		return
	}
	if err := ctl.Coord.Offer(id, key, p.Offer); err != nil {
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *SignalWSController) handleAnswer(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type answerPayload struct {
		Type     string                    `json:"type"`
		RoomID   string                    `json:"roomId"`
		StreamID string                    `json:"streamId"`
		Answer   webrtc.SessionDescription `json:"answer"`
	}
	var p answerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key := relayKey(p.RoomID, p.StreamID)
	if key == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if err := ctl.Coord.Answer(id, key, p.Answer); err != nil {
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *SignalWSController) handleCandidate(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type candidatePayload struct {
		Type      string                  `json:"type"`
		RoomID    string                  `json:"roomId"`
		StreamID  string                  `json:"streamId"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key := relayKey(p.RoomID, p.StreamID)
	if key == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if err := ctl.Coord.Candidate(id, key, p.Candidate); err != nil {
		ctl.sendError(conn, err.Error())
	}
}
