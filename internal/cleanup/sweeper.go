// Package cleanup removes chat sessions that stayed idle past their TTL.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/byteball/attestation-kit/internal/gate"
	"github.com/byteball/attestation-kit/internal/store"
)

const sweepInterval = time.Minute

// Sweeper deletes idle sessions. Each deletion runs under the client's gate
// so it never interleaves with a handler of the same conversation.
type Sweeper struct {
	sessions  store.SessionStore
	gate      *gate.Gate
	ttl       time.Duration
	onExpired func(clientID string)
}

// NewSweeper creates a sweeper. onExpired, when set, is called with every
// removed client id after its gate is released.
func NewSweeper(sessions store.SessionStore, g *gate.Gate, ttl time.Duration, onExpired func(clientID string)) *Sweeper {
	if g == nil {
		g = gate.New()
	}
	return &Sweeper{
		sessions:  sessions,
		gate:      g,
		ttl:       ttl,
		onExpired: onExpired,
	}
}

// Start sweeps every interval until ctx is done. A zero ttl disables
// sweeping.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		slog.Info("Session sweeper disabled")
		return
	}
	if interval <= 0 {
		interval = sweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one cleanup pass and returns the ids it removed.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	idle, err := s.sessions.IdleSessions(ctx, s.ttl)
	if err != nil {
		slog.Error("Session sweeper failed to list idle sessions", "error", err)
		return nil
	}

	var removed []string
	for _, clientID := range idle {
		var deleted bool
		err := s.gate.Do(ctx, clientID, func(ctx context.Context) error {
			var derr error
			deleted, derr = s.sessions.DeleteIdleSession(ctx, clientID, s.ttl)
			return derr
		})
		if err != nil {
			slog.Error("Session sweeper failed to delete session", "client_id", clientID, "error", err)
			continue
		}
		if !deleted {
			continue
		}

		removed = append(removed, clientID)
		if s.onExpired != nil {
			s.onExpired(clientID)
		}
	}

	if len(removed) > 0 {
		slog.Info("Session sweeper removed idle sessions", "count", len(removed), "ttl", s.ttl)
	}
	return removed
}
