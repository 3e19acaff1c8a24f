package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Pranav-NJ/suraksha/internal/adapters/signal"
	"github.com/Pranav-NJ/suraksha/internal/config"
	"github.com/Pranav-NJ/suraksha/internal/metrics"
)

// ClientTokenMiddleware tags each browser with a stable token for log
// correlation. Connection identity stays per-socket regardless.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController, met *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SurakshaSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if met != nil {
		r.GET("/metrics", gin.WrapH(met.Handler(func() {
			met.SetRegistrySizes(ctl.Coord.Counts())
		})))
	}

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Coord.Rooms())
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
