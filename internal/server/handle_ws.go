package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/artificial-games/artificial/internal/room"
)

const wsWriteTimeout = 10 * time.Second

// handleWS streams room snapshots over a WebSocket as JSON text messages.
// Clients only listen; anything they send is discarded.
func handleWS(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := sessionFrom(r).RoomCode
		if _, err := rooms.Get(r.Context(), code); err != nil {
			fail(w, logger, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// CloseRead handles control frames and cancels ctx once the peer goes.
		ctx := conn.CloseRead(r.Context())

		snapshots, err := rooms.Watch(ctx, code)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "watch failed")
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case rm, ok := <-snapshots:
				if !ok {
					if ctx.Err() == nil {
						conn.Close(websocket.StatusGoingAway, "room removed")
					}
					return
				}
				if err := writeSnapshot(ctx, conn, rm); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, rm room.Room) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, viewOf(rm))
}
