package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const websocketWriteWait = 10 * time.Second

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleGalleryEvents streams selection events of one gallery over a
// websocket, with periodic heartbeats.
func (h *httpHandler) handleGalleryEvents(c *gin.Context) {
	gallery := galleryFromContext(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Subscribe before upgrading so events published right after the
	// handshake are not missed.
	stream, cleanup := h.realtime.Subscribe(ctx, gallery.ID)
	defer cleanup()

	conn, err := websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("gallery_id", gallery.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			if err := writeRealtimeMessage(conn, message); err != nil {
				h.logger.Debug("websocket write failed", zap.String("gallery_id", gallery.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			heartbeat := RealtimeMessage{
				GalleryID: gallery.ID,
				EventType: realtimeEventHeartbeat,
				Source:    realtimeSourceBackend,
				Timestamp: time.Now().UTC(),
			}
			if err := writeRealtimeMessage(conn, heartbeat); err != nil {
				h.logger.Debug("websocket heartbeat failed", zap.String("gallery_id", gallery.ID), zap.Error(err))
				return
			}
		}
	}
}

func writeRealtimeMessage(conn *websocket.Conn, message RealtimeMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(message)
}
