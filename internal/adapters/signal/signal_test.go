package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Pranav-NJ/suraksha/internal/config"
	"github.com/Pranav-NJ/suraksha/internal/core"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:         "test",
		ReadLimit:    32768,
		SendBuffer:   32,
		PingPeriod:   time.Minute,
		WriteTimeout: time.Second,
		JoinRate:     100,
		JoinInterval: time.Second,
	}
	coord := core.NewCoordinator(nil)
	ctl := NewSignalWSController(cfg, coord, nil)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	return m
}

func expectType(t *testing.T, ws *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	m := recv(t, ws)
	if m["type"] != msgType {
		t.Fatalf("got message %v, want type %q", m, msgType)
	}
	return m
}

func TestSignal_JoinOfferAnswerFlow(t *testing.T) {
	srv := newTestServer(t)

	child := dial(t, srv)
	send(t, child, map[string]any{"type": "join_room", "roomId": "emergency_room_emergency_1", "role": "child"})
	expectType(t, child, "room_joined")

	parent := dial(t, srv)
	send(t, parent, map[string]any{"type": "join_room", "roomId": "emergency_room_emergency_1", "role": "parent"})
	expectType(t, parent, "room_joined")

	send(t, child, map[string]any{
		"type":   "offer",
		"roomId": "emergency_room_emergency_1",
		"offer":  map[string]any{"type": "offer", "sdp": "v=0 test"},
	})
	offer := expectType(t, parent, "offer")
	if offer["offer"].(map[string]any)["sdp"] != "v=0 test" {
		t.Errorf("relayed offer mangled: %v", offer)
	}
	expectType(t, parent, "child_stream_offer")

	send(t, parent, map[string]any{
		"type":   "answer",
		"roomId": "emergency_room_emergency_1",
		"answer": map[string]any{"type": "answer", "sdp": "v=0 reply"},
	})
	expectType(t, child, "answer")
	expectType(t, child, "parent_stream_answer")

	send(t, child, map[string]any{
		"type":      "ice_candidate",
		"roomId":    "emergency_room_emergency_1",
		"candidate": map[string]any{"candidate": "candidate:1 1 udp 1 10.0.0.1 1 typ host"},
	})
	cand := expectType(t, parent, "ice_candidate")
	if cand["from"] != "child" {
		t.Errorf("candidate sender role = %v, want child", cand["from"])
	}
}

func TestSignal_LateParentGetsReplay(t *testing.T) {
	srv := newTestServer(t)

	child := dial(t, srv)
	send(t, child, map[string]any{
		"type":     "child_join_room",
		"roomId":   "room_x",
		"streamId": "stream_tok_1",
		"offer":    map[string]any{"type": "offer", "sdp": "v=0 early"},
	})
	expectType(t, child, "room_joined")

	// Joining via the stream token alone resolves to the same session.
	parent := dial(t, srv)
	send(t, parent, map[string]any{"type": "request_child_stream", "streamId": "stream_tok_1"})
	offer := expectType(t, parent, "offer")
	if offer["roomId"] != "room_x" {
		t.Errorf("alias resolved to %v, want room_x", offer["roomId"])
	}
	expectType(t, parent, "child_stream_offer")
	expectType(t, parent, "room_joined")
}

func TestSignal_MalformedAndUnknownTolerated(t *testing.T) {
	srv := newTestServer(t)
	ws := dial(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	send(t, ws, map[string]any{"type": "from_the_future", "payload": 42})

	// The connection must survive both; ping still answers.
	send(t, ws, map[string]any{"type": "ping"})
	pong := expectType(t, ws, "pong")
	if _, ok := pong["ts"].(float64); !ok {
		t.Errorf("pong without ts: %v", pong)
	}
}

func TestSignal_SessionlessAnswerGetsErrorReply(t *testing.T) {
	srv := newTestServer(t)
	ws := dial(t, srv)

	send(t, ws, map[string]any{
		"type":   "answer",
		"roomId": "nowhere",
		"answer": map[string]any{"type": "answer", "sdp": "x"},
	})
	errMsg := expectType(t, ws, "error")
	if errMsg["error"] == "" {
		t.Errorf("empty error reply: %v", errMsg)
	}

	// Still usable afterwards.
	send(t, ws, map[string]any{"type": "ping"})
	expectType(t, ws, "pong")
}

func TestSignal_StopStreamClosesSubscribersNormally(t *testing.T) {
	srv := newTestServer(t)

	child := dial(t, srv)
	send(t, child, map[string]any{"type": "join_room", "roomId": "r", "role": "child"})
	expectType(t, child, "room_joined")

	parent := dial(t, srv)
	send(t, parent, map[string]any{"type": "join_room", "roomId": "r", "role": "parent"})
	expectType(t, parent, "room_joined")

	send(t, child, map[string]any{"type": "stop_stream", "roomId": "r"})
	expectType(t, parent, "stream_stopped")

	_ = parent.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := parent.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("subscriber close err = %v, want normal closure", err)
	}
}

func TestSignal_ChildDisconnectEndsStream(t *testing.T) {
	srv := newTestServer(t)

	child := dial(t, srv)
	send(t, child, map[string]any{"type": "join_room", "roomId": "r", "role": "child"})
	expectType(t, child, "room_joined")

	parent := dial(t, srv)
	send(t, parent, map[string]any{"type": "join_room", "roomId": "r", "role": "parent"})
	expectType(t, parent, "room_joined")

	_ = child.Close()

	ended := expectType(t, parent, "stream_ended")
	if ended["reason"] != "child_disconnected" {
		t.Errorf("reason = %v, want child_disconnected", ended["reason"])
	}
}

func TestJoinRateLimiter_Window(t *testing.T) {
	rl := NewJoinRateLimiter(2, time.Minute)
	if !rl.Allow("c1") || !rl.Allow("c1") {
		t.Fatalf("first attempts within limit must pass")
	}
	if rl.Allow("c1") {
		t.Errorf("third attempt within window must be blocked")
	}
	if !rl.Allow("c2") {
		t.Errorf("limiter must be per-connection")
	}
	rl.Forget("c1")
	if !rl.Allow("c1") {
		t.Errorf("Forget must reset the window")
	}
}
