package server

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type sessionLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiter hands every session its own token bucket. A non-positive
// rate disables limiting.
type sessionLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	sessions map[string]*sessionLimit
}

func newSessionLimiter(perSecond float64, burst int) *sessionLimiter {
	if burst < 1 {
		burst = 1
	}
	return &sessionLimiter{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		sessions: make(map[string]*sessionLimit),
	}
}

func (l *sessionLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[key]
	if !ok {
		s = &sessionLimit{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.sessions[key] = s
	}
	s.lastSeen = now

	for k, other := range l.sessions {
		if now.Sub(other.lastSeen) > limiterIdle {
			delete(l.sessions, k)
		}
	}
	return s.limiter
}

// middleware rejects requests over the caller's budget with 429 and a
// Retry-After hint. It runs after sessionMiddleware.
func (l *sessionLimiter) middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.rate <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			sess := sessionFrom(r)
			key := sess.RoomCode + "/" + sess.ParticipantID
			now := time.Now()
			res := l.get(key, now).ReserveN(now, 1)
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				logger.Warn("generation rate limited", "code", sess.RoomCode, "participant", sess.ParticipantID)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeError(w, http.StatusTooManyRequests, fmt.Sprintf("rate limited, retry in %s", delay.Round(time.Second)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
