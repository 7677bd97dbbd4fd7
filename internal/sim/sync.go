package sim

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"riftvale/server/internal/world"
)

// SyncInterval is the cadence of the periodic durable write-back.
const SyncInterval = 30 * time.Second

// Syncer periodically writes every live actor back to durable storage and the
// cache so a crash loses at most one interval of progress.
type Syncer struct {
	store *world.Store
	log   *zap.Logger
}

// NewSyncer builds the periodic persistence pass.
func NewSyncer(store *world.Store, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{store: store, log: log}
}

// TickSync persists every live actor. Per-actor failures are logged and the
// pass continues; an actor leaving mid-pass is not an error.
func (s *Syncer) TickSync(ctx context.Context, _ time.Time) {
	ids := s.store.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		if err := s.store.SyncToDurable(ctx, id); err != nil && err != world.ErrActorNotFound {
			s.log.Warn("periodic sync failed", zap.String("actor", id), zap.Error(err))
		}
	}
}

// SyncAll is the shutdown flush: one final pass over every live actor.
func (s *Syncer) SyncAll(ctx context.Context) {
	s.TickSync(ctx, time.Now())
}
