package sim

import (
	"context"
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"riftvale/server/internal/grid"
	"riftvale/server/internal/nav"
	"riftvale/server/internal/net/ws"
	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

// moveStepInterval is the minimum wall-clock gap between two steps of the
// same actor.
const moveStepInterval = 150 * time.Millisecond

// MovementQueue is the remaining tile steps for one actor, consumed one step
// per movement tick.
type MovementQueue struct {
	ActorID string
	UserID  string
	Steps   []nav.Point
}

// Movement owns the per-actor step queues and applies them at a fixed rate,
// keeping position, spatial index, and per-area batched broadcasts in step.
type Movement struct {
	mu     deadlock.Mutex
	queues map[string]*MovementQueue

	store        *world.Store
	index        *grid.Index
	planner      *nav.Service
	areas        *world.Catalog
	bc           Broadcaster
	interactions interactionCanceller
	tracker      positionTracker
	log          *zap.Logger
}

// NewMovement builds the movement coordinator.
func NewMovement(store *world.Store, index *grid.Index, planner *nav.Service, areas *world.Catalog, bc Broadcaster, log *zap.Logger) *Movement {
	if log == nil {
		log = zap.NewNop()
	}
	return &Movement{
		queues:  make(map[string]*MovementQueue),
		store:   store,
		index:   index,
		planner: planner,
		areas:   areas,
		bc:      bc,
		log:     log,
	}
}

// BindInteractions injects the interaction canceller after construction;
// the two coordinators reference each other through narrow interfaces.
func (m *Movement) BindInteractions(ic interactionCanceller) { m.interactions = ic }

// BindTracker injects the session position tracker.
func (m *Movement) BindTracker(pt positionTracker) { m.tracker = pt }

// RequestMoveTo validates the session and target tile, computes a step path,
// cancels any pending interaction, and installs the movement queue.
func (m *Movement) RequestMoveTo(ctx context.Context, sess *ws.Session, tileX, tileY int) error {
	if !sess.Complete() {
		return ErrSessionInvalid
	}
	actor, ok := m.store.Get(sess.ActorID)
	if !ok {
		return world.ErrActorNotFound
	}
	area, err := m.areas.Area(ctx, actor.AreaID)
	if err != nil {
		return err
	}
	if !area.Walkable(tileX, tileY) {
		return ErrImpassable
	}

	fromX, fromY := actor.Tile(area.TileSize)
	from := nav.Point{X: fromX, Y: fromY}
	to := nav.Point{X: tileX, Y: tileY}
	if from == to {
		return nil
	}
	steps := m.planner.StepPath(ctx, actor.AreaID, from, to, area)
	if len(steps) == 0 {
		return ErrUnreachable
	}

	if m.interactions != nil {
		m.interactions.CancelPending(sess.ActorID)
	}
	m.SetQueue(&MovementQueue{ActorID: sess.ActorID, UserID: sess.UserID, Steps: steps})
	return nil
}

// reroute recomputes a path for the actor toward the tile and installs it
// without touching pending interactions; used when a walk stalls short.
func (m *Movement) reroute(ctx context.Context, actorID string, tileX, tileY int) error {
	actor, ok := m.store.Get(actorID)
	if !ok {
		return world.ErrActorNotFound
	}
	area, err := m.areas.Area(ctx, actor.AreaID)
	if err != nil {
		return err
	}
	fromX, fromY := actor.Tile(area.TileSize)
	from := nav.Point{X: fromX, Y: fromY}
	to := nav.Point{X: tileX, Y: tileY}
	if from == to {
		return nil
	}
	steps := m.planner.StepPath(ctx, actor.AreaID, from, to, area)
	if len(steps) == 0 {
		return ErrUnreachable
	}
	m.SetQueue(&MovementQueue{ActorID: actorID, UserID: actor.UserID, Steps: steps})
	return nil
}

// SetQueue installs or replaces an actor's movement queue.
func (m *Movement) SetQueue(q *MovementQueue) {
	if q == nil || q.ActorID == "" {
		return
	}
	m.mu.Lock()
	m.queues[q.ActorID] = q
	m.mu.Unlock()
}

// Queue returns the actor's current movement queue, if any.
func (m *Movement) Queue(actorID string) (*MovementQueue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[actorID]
	return q, ok
}

// DeleteQueue drops an actor's movement queue. Idempotent.
func (m *Movement) DeleteQueue(actorID string) {
	m.mu.Lock()
	delete(m.queues, actorID)
	m.mu.Unlock()
}

// TickMovement advances every queued actor by at most one step and emits one
// batched movement event per affected area.
func (m *Movement) TickMovement(ctx context.Context, now time.Time) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	batches := make(map[string][]proto.PositionUpdate)
	for _, id := range ids {
		update, areaID, ok := m.stepActor(ctx, id, now)
		if !ok {
			continue
		}
		batches[areaID] = append(batches[areaID], update)
	}

	for areaID, moves := range batches {
		m.bc.BroadcastArea(areaID, proto.MovementBatch{
			Type:   proto.EvtMoveBatch,
			AreaID: areaID,
			Moves:  moves,
		})
	}
}

// stepActor pops one step for the actor when its per-step interval elapsed,
// applying position, spatial index, and facing updates.
func (m *Movement) stepActor(ctx context.Context, actorID string, now time.Time) (proto.PositionUpdate, string, bool) {
	m.mu.Lock()
	q, ok := m.queues[actorID]
	if !ok || len(q.Steps) == 0 {
		delete(m.queues, actorID)
		m.mu.Unlock()
		return proto.PositionUpdate{}, "", false
	}
	step := q.Steps[0]
	m.mu.Unlock()

	var (
		areaID     string
		oldX, oldY int
		newX, newY int
		moved      bool
	)
	present := m.store.Update(actorID, func(a *world.Actor) {
		if now.Sub(a.LastMoveAt) < moveStepInterval {
			return
		}
		area, err := m.areas.Area(ctx, a.AreaID)
		if err != nil {
			m.log.Warn("movement lost its area", zap.String("actor", actorID), zap.Error(err))
			return
		}
		tileSize := area.TileSize
		if tileSize <= 0 {
			tileSize = world.TileSize
		}
		areaID = a.AreaID
		oldX, oldY = a.X, a.Y
		newX, newY = step.X*tileSize, step.Y*tileSize
		a.X, a.Y = newX, newY
		a.LastMoveAt = now
		moved = true
	})
	if !present {
		m.DeleteQueue(actorID)
		return proto.PositionUpdate{}, "", false
	}
	if !moved {
		return proto.PositionUpdate{}, "", false
	}

	m.index.Update(actorID, areaID, oldX, oldY, areaID, newX, newY)
	if m.tracker != nil {
		m.tracker.UpdateActorPosition(actorID, newX, newY)
	}

	m.mu.Lock()
	if q2, ok := m.queues[actorID]; ok && q2 == q {
		q.Steps = q.Steps[1:]
		if len(q.Steps) == 0 {
			delete(m.queues, actorID)
		}
	}
	m.mu.Unlock()

	return proto.PositionUpdate{
		ID:  actorID,
		X:   newX,
		Y:   newY,
		Dir: string(deriveFacing(newX-oldX, newY-oldY)),
	}, areaID, true
}
