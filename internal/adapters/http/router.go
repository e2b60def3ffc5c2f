package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/adapters/signal"
	"github.com/mentorgrid/live/internal/app"
	"github.com/mentorgrid/live/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a token cookie to the browser; the identity
// resolver maps it to a user on presence.hello.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LiveSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	// Read-only views for the marketplace UI.
	api.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"users":       coord.Presence.Snapshot(),
			"connections": coord.Presence.ConnectionsSnapshot(),
		})
	})
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": coord.Rooms.Rooms()})
	})

	return r
}
