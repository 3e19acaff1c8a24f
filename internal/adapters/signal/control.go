package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/domain"
)

// handlePing is advisory keep-alive only: a missing pong never
// disconnects anyone.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, domain.Pong{
		Type: domain.TypePong,
		TS:   time.Now().UnixMilli(),
	})
}

type streamControlPayload struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	StreamID string `json:"streamId"`
}

func (ctl *SignalWSController) handleStartStream(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p streamControlPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad start_stream payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key := relayKey(p.RoomID, p.StreamID)
	if key == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	if err := ctl.Coord.StartStream(id, key); err != nil {
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *SignalWSController) handleStopStream(
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p streamControlPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad stop_stream payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	key := relayKey(p.RoomID, p.StreamID)
	if key == "" {
		ctl.sendError(conn, "missing roomId")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("key", key).Msg("stop stream")
	if err := ctl.Coord.StopStream(id, key); err != nil {
		ctl.sendError(conn, err.Error())
	}
}
