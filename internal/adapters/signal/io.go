package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/core"
	"github.com/Pranav-NJ/suraksha/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				// Drained after Close: finish the websocket closing
				// handshake with a normal-closure code.
				deadline := time.Now().Add(c.writeTimeout)
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				_ = c.conn.Close()
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		cancel()
		ctl.Coord.Disconnect(id)
		ctl.limiter.Forget(id)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(id, c, data)
		}
	}
}

// handleSignal dispatches one inbound frame. Nothing may escape this
// function: one bad frame or a panicking handler must never take the
// coordinator or the connection down.
func (ctl *SignalWSController) handleSignal(id domain.ConnID, c *WsSignalConn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("conn", string(id)).Any("panic", r).Msg("handler panic recovered")
		}
	}()

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		return
	}
	if ctl.met != nil {
		ctl.met.IncMessage(env.Type)
	}

	switch env.Type {
	case domain.TypeJoinRoom:
		ctl.handleJoinRoom(id, c, data)
	case domain.TypeChildJoinRoom:
		ctl.handleChildJoin(id, c, data)
	case domain.TypeParentJoinRoom:
		ctl.handleParentJoin(id, c, data)
	case domain.TypeRequestChildStream:
		ctl.handleRequestChildStream(id, c, data)
	case domain.TypeOffer:
		ctl.handleOffer(id, c, data)
	case domain.TypeAnswer, domain.TypeParentStreamAnswer:
		ctl.handleAnswer(id, c, data)
	case domain.TypeIceCandidate:
		ctl.handleCandidate(id, c, data)
	case domain.TypeStartStream:
		ctl.handleStartStream(id, c, data)
	case domain.TypeStopStream:
		ctl.handleStopStream(id, c, data)
	case domain.TypePing:
		ctl.handlePing(c)
	default:
		// Unknown types are ignored on purpose: independently-versioned
		// clients may be ahead of or behind this server.
		log.Debug().Str("module", "signal").Str("type", env.Type).Msg("unknown signal type ignored")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, msg string) {
	ctl.sendJSON(c, domain.ErrorMessage{Type: domain.TypeError, Error: msg})
}
