package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/artificial-games/artificial/internal/room"
)

type ctxKey int

const ctxKeySession ctxKey = iota

// bearerToken reads the Authorization header. Streams opened by browsers
// cannot set headers, so the token query parameter is accepted as well.
func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// sessionMiddleware resolves the caller's session and, on routes with a
// {code}, checks the session belongs to that room.
func sessionMiddleware(rooms *room.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := rooms.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				fail(w, logger, err)
				return
			}

			if code := chi.URLParam(r, "code"); code != "" && room.NormalizeCode(code) != sess.RoomCode {
				fail(w, logger, fmt.Errorf("%w: session belongs to another room", room.ErrForbidden))
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(r *http.Request) room.Session {
	return r.Context().Value(ctxKeySession).(room.Session)
}

// caller is the identity the request acts as.
func caller(r *http.Request) room.Identity {
	return room.Identity{ID: sessionFrom(r).ParticipantID}
}
