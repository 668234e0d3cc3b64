package server

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/artificial-games/artificial/internal/room"
)

const qrSize = 320

// joinURL is the address players open to join code, as seen by the client
// that asked for it.
func joinURL(r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/join", RawQuery: url.Values{"code": {code}}.Encode()}
	return u.String()
}

// handleQR renders the room's join link as a PNG for the projector.
func handleQR(rooms *room.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := rooms.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			fail(w, logger, err)
			return
		}

		png, err := qrcode.Encode(joinURL(r, rm.Code), qrcode.Medium, qrSize)
		if err != nil {
			logger.Error("qr generation failed", "code", rm.Code, "error", err)
			writeError(w, http.StatusInternalServerError, "qr generation failed")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(png)
	}
}
