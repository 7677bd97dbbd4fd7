package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

var (
	// ErrActorNotFound reports a lookup for an actor the store does not hold.
	ErrActorNotFound = errors.New("world: actor not found")
)

// CacheSync is the slice of the shared cache the store needs: area rosters,
// the name lookup, connection markers, and actor snapshots. Cache writes are
// eventually consistent; failures are logged, never fatal.
type CacheSync interface {
	AddAreaMember(ctx context.Context, areaID, actorID string) error
	RemoveAreaMember(ctx context.Context, areaID, actorID string) error
	SetNameLookup(ctx context.Context, name, actorID string) error
	ClearConnected(ctx context.Context, userID string) error
	SetActorSnapshot(ctx context.Context, snap Snapshot) error
}

// DurableSync writes actor snapshots to the system of record.
type DurableSync interface {
	UpdateActor(ctx context.Context, snap Snapshot) error
}

// Store owns every live actor on the shard. The map and all actor field
// mutation are guarded by one store-level lock; reads leave as detached
// copies and writes go through the Update closures, so no live pointer ever
// crosses the lock boundary.
type Store struct {
	mu      deadlock.RWMutex
	actors  map[string]*Actor
	cache   CacheSync
	durable DurableSync
	log     *zap.Logger
}

// NewStore builds an empty live-state store.
func NewStore(cache CacheSync, durable DurableSync, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		actors:  make(map[string]*Actor),
		cache:   cache,
		durable: durable,
		log:     log,
	}
}

// Join registers a hydrated actor in the given area and mirrors the
// membership into the shared cache. Joining an id that is already live is a
// no-op, so a raced double-connect cannot duplicate an actor.
func (s *Store) Join(ctx context.Context, actor *Actor, areaID string) error {
	if actor == nil || actor.ID == "" {
		return fmt.Errorf("world: join with empty actor")
	}
	s.mu.Lock()
	if _, exists := s.actors[actor.ID]; exists {
		s.mu.Unlock()
		return nil
	}
	actor.AreaID = areaID
	s.actors[actor.ID] = actor
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.AddAreaMember(ctx, areaID, actor.ID); err != nil {
			s.log.Warn("cache roster add failed", zap.String("actor", actor.ID), zap.Error(err))
		}
		if err := s.cache.SetNameLookup(ctx, actor.Name, actor.ID); err != nil {
			s.log.Warn("cache name lookup write failed", zap.String("actor", actor.ID), zap.Error(err))
		}
	}
	return nil
}

// Leave evicts an actor from memory and clears its cache membership and
// connection marker. Leaving an absent actor only clears the cache side.
func (s *Store) Leave(ctx context.Context, userID, actorID, areaID string) {
	s.mu.Lock()
	delete(s.actors, actorID)
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.RemoveAreaMember(ctx, areaID, actorID); err != nil {
		s.log.Warn("cache roster remove failed", zap.String("actor", actorID), zap.Error(err))
	}
	if err := s.cache.ClearConnected(ctx, userID); err != nil {
		s.log.Warn("cache connected marker clear failed", zap.String("user", userID), zap.Error(err))
	}
}

// MoveTo mutates an actor's position and last-move time in place. Spatial
// index and broadcast side effects are the caller's concern.
func (s *Store) MoveTo(actorID string, x, y int, ts time.Time) bool {
	return s.Update(actorID, func(a *Actor) {
		a.X = x
		a.Y = y
		a.LastMoveAt = ts
	})
}

// ChangeArea moves an actor to a new area and position in one step and swaps
// its cache roster membership.
func (s *Store) ChangeArea(ctx context.Context, actorID, destAreaID string, x, y int) error {
	var fromAreaID string
	s.mu.Lock()
	a, ok := s.actors[actorID]
	if !ok {
		s.mu.Unlock()
		return ErrActorNotFound
	}
	fromAreaID = a.AreaID
	a.AreaID = destAreaID
	a.X = x
	a.Y = y
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.RemoveAreaMember(ctx, fromAreaID, actorID); err != nil {
			s.log.Warn("cache roster remove failed", zap.String("actor", actorID), zap.Error(err))
		}
		if err := s.cache.AddAreaMember(ctx, destAreaID, actorID); err != nil {
			s.log.Warn("cache roster add failed", zap.String("actor", actorID), zap.Error(err))
		}
	}
	return nil
}

// Get returns a detached copy of the actor's current state, taken under the
// store lock. Mutations go through Update; writes to the copy are lost. The
// copy shares only the skill map, whose shape is fixed after hydration.
func (s *Store) Get(actorID string) (*Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[actorID]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Update runs fn against the actor under the store lock. It reports whether
// the actor was present.
func (s *Store) Update(actorID string, fn func(*Actor)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[actorID]
	if !ok {
		return false
	}
	fn(a)
	return true
}

// UpdatePair runs fn against two distinct actors under the store lock,
// reporting whether both were present.
func (s *Store) UpdatePair(firstID, secondID string, fn func(first, second *Actor)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first, ok := s.actors[firstID]
	if !ok {
		return false
	}
	second, ok := s.actors[secondID]
	if !ok {
		return false
	}
	fn(first, second)
	return true
}

// Each visits every live actor under the store lock.
func (s *Store) Each(fn func(*Actor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actors {
		fn(a)
	}
}

// IDs lists every live actor id.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.actors))
	for id := range s.actors {
		out = append(out, id)
	}
	return out
}

// InArea returns snapshots of every live actor in the area.
func (s *Store) InArea(areaID string) []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, 8)
	for _, a := range s.actors {
		if a.AreaID == areaID {
			out = append(out, a.Snapshot())
		}
	}
	return out
}

// SyncToDurable snapshots the actor and writes it to durable storage and the
// cache. Called on disconnect and from the periodic sync pass.
func (s *Store) SyncToDurable(ctx context.Context, actorID string) error {
	s.mu.RLock()
	a, ok := s.actors[actorID]
	if !ok {
		s.mu.RUnlock()
		return ErrActorNotFound
	}
	snap := a.Snapshot()
	s.mu.RUnlock()

	if s.durable != nil {
		if err := s.durable.UpdateActor(ctx, snap); err != nil {
			return fmt.Errorf("world: durable sync for %s: %w", actorID, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.SetActorSnapshot(ctx, snap); err != nil {
			s.log.Warn("cache snapshot write failed", zap.String("actor", actorID), zap.Error(err))
		}
	}
	return nil
}
