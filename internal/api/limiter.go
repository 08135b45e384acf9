package api

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	pmerrors "pmat/internal/errors"
)

// RetryAfterSeconds is sent with shed requests.
const RetryAfterSeconds = 5

// ConnectionLimiter sheds requests beyond a fixed number in flight.
// Health checks are never shed.
type ConnectionLimiter struct {
	max      int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	shed     atomic.Uint64
}

// NewConnectionLimiter allows max concurrent requests.
func NewConnectionLimiter(max int) *ConnectionLimiter {
	return &ConnectionLimiter{max: int64(max), sem: semaphore.NewWeighted(int64(max))}
}

// LimiterStats is a snapshot of limiter counters.
type LimiterStats struct {
	InFlight  int64  `json:"inFlight"`
	Max       int64  `json:"max"`
	TotalShed uint64 `json:"totalShed"`
}

// Stats returns current counters.
func (l *ConnectionLimiter) Stats() LimiterStats {
	return LimiterStats{InFlight: l.inFlight.Load(), Max: l.max, TotalShed: l.shed.Load()}
}

// Middleware rejects requests with 503 when every slot is taken.
func (l *ConnectionLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !l.sem.TryAcquire(1) {
			l.shed.Add(1)
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
			err := pmerrors.New(pmerrors.ResourceLimit, "server busy: "+strconv.FormatInt(l.max, 10)+" requests in flight", nil)
			WriteError(w, err, http.StatusServiceUnavailable)
			return
		}
		l.inFlight.Add(1)
		defer func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		}()
		next.ServeHTTP(w, r)
	})
}
