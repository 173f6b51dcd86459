package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joshua-takyi/gatherly/internal/middleware"
	"github.com/joshua-takyi/gatherly/internal/realtime"
	"github.com/joshua-takyi/gatherly/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the connection and runs it against the hub. The bearer
// credential is optional here: guests may subscribe to rooms, they just
// cannot join events.
func ServeWS(hub *realtime.Hub, users *services.UserService, attendance *services.AttendanceService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string
		if token := middleware.ExtractToken(c); token != "" {
			resolved, err := users.ResolveUser(c.Request.Context(), token)
			if err == nil {
				userID = resolved
			} else {
				logger.Info("Websocket credential rejected, continuing as guest", "error", err)
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("Websocket upgrade failed", "error", err)
			return
		}

		client := realtime.NewClient(hub, conn, attendance, userID, logger)
		client.Serve(c.Request.Context())
	}
}
