// Package signal is the WebSocket adapter for the coordinator: it owns
// the transport connections and translates frames into coordinator
// calls. State lives in core; this package only pumps and dispatches.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/config"
	"github.com/Pranav-NJ/suraksha/internal/core"
	"github.com/Pranav-NJ/suraksha/internal/metrics"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Coord *core.Coordinator

	cfg      *config.Config
	met      *metrics.Metrics
	limiter  *JoinRateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(cfg *config.Config, coord *core.Coordinator, met *metrics.Metrics) *SignalWSController {
	return &SignalWSController{
		Coord:   coord,
		cfg:     cfg,
		met:     met,
		limiter: NewJoinRateLimiter(cfg.JoinRate, cfg.JoinInterval),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == cfg.AllowedOrigin
			},
		},
	}
}

// WsSignalConn implements core.SignalConnection over one websocket.
type WsSignalConn struct {
	conn         *websocket.Conn
	send         chan core.Frame
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close marks the connection closed and closes the send channel. The
// write pump drains whatever is still queued (e.g. stream_stopped sent
// in the same handler), then finishes with a normal-closure frame. Safe
// to call from the coordinator (session teardown) and from the pumps.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsSignalConn{
		conn:         ws,
		send:         make(chan core.Frame, ctl.cfg.SendBuffer),
		writeTimeout: ctl.cfg.WriteTimeout,
	}

	peer := ctl.Coord.Register(conn)
	log.Info().Str("module", "signal").Str("conn", string(peer.ID)).
		Str("ct", c.GetString("client_token")).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, cancel, peer.ID, conn)
}
