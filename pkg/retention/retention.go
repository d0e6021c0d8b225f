package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/logger"
	"harbor/pkg/metrics"
	"harbor/pkg/models"
	"harbor/pkg/store"
)

// Sweeper expires stale status snapshots. Status events describe live
// backend state; once older than the TTL they are noise and get removed
// together with their index rows.
type Sweeper struct {
	cron string
	ttl  time.Duration
	gron *gronx.Gronx
	now  func() time.Time
}

// New validates the cron expression up front.
func New(cron string, ttl time.Duration) (*Sweeper, error) {
	g := gronx.New()
	if !g.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron %q", cron)
	}
	return &Sweeper{cron: cron, ttl: ttl, gron: g, now: time.Now}, nil
}

// Run sweeps once at startup, then on the cron schedule until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			due, err := s.gron.IsDue(s.cron, s.now())
			if err != nil || !due {
				continue
			}
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep removes status events older than the TTL. Deletion failures are
// logged and retried on the next run.
func (s *Sweeper) Sweep() {
	cutoff := nostr.Timestamp(s.now().Add(-s.ttl).Unix())

	txn, err := store.BeginRead()
	if err != nil {
		logger.Log.Warn("retention_read_failed", zap.Error(err))
		return
	}
	events, err := txn.Query([]nostr.Filter{{
		Kinds: []int{models.KindStatus},
		Until: &cutoff,
	}}, 0)
	_ = txn.Close()
	if err != nil {
		logger.Log.Warn("retention_query_failed", zap.Error(err))
		return
	}

	removed := 0
	for _, ev := range events {
		if err := store.DeleteEvent(ev.ID); err != nil {
			logger.Log.Warn("retention_delete_failed", zap.String("id", ev.ID), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		metrics.StatusGC.Add(float64(removed))
		logger.Log.Info("status_gc", zap.Int("removed", removed))
	}
}
