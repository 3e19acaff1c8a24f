package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Pranav-NJ/suraksha/internal/adapters/signal"
	"github.com/Pranav-NJ/suraksha/internal/config"
	"github.com/Pranav-NJ/suraksha/internal/core"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:         "test",
		Secret:       "test-secret",
		ReadLimit:    32768,
		SendBuffer:   32,
		PingPeriod:   time.Minute,
		WriteTimeout: time.Second,
		JoinRate:     100,
		JoinInterval: time.Second,
	}
	coord := core.NewCoordinator(nil)
	ctl := signal.NewSignalWSController(cfg, coord, nil)
	return SetupRouter(context.Background(), cfg, ctl, nil)
}

func TestRouter_Healthz(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("healthz body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz status field = %q, want ok", body["status"])
	}
}

func TestRouter_RoomsListingEmpty(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("rooms status = %d, want 200", rec.Code)
	}
	var rooms []core.RoomInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("rooms body %q: %v", rec.Body.String(), err)
	}
	if len(rooms) != 0 {
		t.Errorf("fresh coordinator lists %d rooms, want 0", len(rooms))
	}
}

func TestRouter_ClientTokenCookieIsSet(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == "ct" && c.Value != "" {
			return
		}
	}
	t.Errorf("no ct cookie set on first request")
}
