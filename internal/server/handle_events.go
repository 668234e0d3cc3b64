package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/artificial-games/artificial/internal/room"
)

const pingInterval = 30 * time.Second

// handleEvents streams room snapshots as Server-Sent Events. The stream
// ends with a "removed" event when the room goes away.
func handleEvents(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		snapshots, err := rooms.Watch(r.Context(), sessionFrom(r).RoomCode)
		if err != nil {
			fail(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case rm, ok := <-snapshots:
				if !ok {
					if r.Context().Err() == nil {
						fmt.Fprintf(w, "event: removed\ndata: {}\n\n")
						flusher.Flush()
					}
					return
				}
				data, err := json.Marshal(viewOf(rm))
				if err != nil {
					logger.Error("encoding snapshot", "error", err)
					return
				}
				fmt.Fprintf(w, "id: %d\nevent: room\ndata: %s\n\n", rm.Version, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
