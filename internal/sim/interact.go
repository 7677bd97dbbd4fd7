package sim

import (
	"context"
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"riftvale/server/internal/grid"
	"riftvale/server/internal/net/ws"
	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

// pendingInteraction is an actor walking toward a teleport trigger it is not
// inside yet.
type pendingInteraction struct {
	ActorID    string
	AreaID     string
	TeleportID string
	TileX      int
	TileY      int
}

// Interactions resolves teleport use: immediate transitions when the actor
// already stands in the trigger, deferred ones once movement delivers it.
type Interactions struct {
	mu      deadlock.Mutex
	pending map[string]*pendingInteraction

	store    *world.Store
	index    *grid.Index
	areas    *world.Catalog
	movement *Movement
	zones    zoneLister
	bc       Broadcaster
	rooms    RoomMover
	log      *zap.Logger
}

// NewInteractions builds the interaction coordinator.
func NewInteractions(store *world.Store, index *grid.Index, areas *world.Catalog, movement *Movement, zones zoneLister, bc Broadcaster, rooms RoomMover, log *zap.Logger) *Interactions {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interactions{
		pending:  make(map[string]*pendingInteraction),
		store:    store,
		index:    index,
		areas:    areas,
		movement: movement,
		zones:    zones,
		bc:       bc,
		rooms:    rooms,
		log:      log,
	}
}

// RequestUseTeleport transitions the actor immediately when it stands inside
// the trigger, otherwise routes it there and records the pending use.
func (i *Interactions) RequestUseTeleport(ctx context.Context, sess *ws.Session, teleportID string) error {
	if !sess.Complete() {
		return ErrSessionInvalid
	}
	actor, ok := i.store.Get(sess.ActorID)
	if !ok {
		return world.ErrActorNotFound
	}
	area, err := i.areas.Area(ctx, actor.AreaID)
	if err != nil {
		return err
	}
	tp, ok := area.TeleportByID(teleportID)
	if !ok {
		return ErrInvalidTransition
	}

	if tp.Contains(actor.X, actor.Y) {
		i.CancelPending(sess.ActorID)
		return i.executeTransition(ctx, sess.ActorID, area, tp)
	}

	tileSize := area.TileSize
	if tileSize <= 0 {
		tileSize = world.TileSize
	}
	tileX := (tp.X + tp.Width/2) / tileSize
	tileY := (tp.Y + tp.Height/2) / tileSize
	if err := i.movement.RequestMoveTo(ctx, sess, tileX, tileY); err != nil {
		return err
	}
	i.mu.Lock()
	i.pending[sess.ActorID] = &pendingInteraction{
		ActorID:    sess.ActorID,
		AreaID:     actor.AreaID,
		TeleportID: teleportID,
		TileX:      tileX,
		TileY:      tileY,
	}
	i.mu.Unlock()
	return nil
}

// CancelPending drops a recorded teleport use. Idempotent; any newer command
// for the actor supersedes the walk-to-trigger.
func (i *Interactions) CancelPending(actorID string) {
	i.mu.Lock()
	delete(i.pending, actorID)
	i.mu.Unlock()
}

// TickInteractions fires every pending teleport whose actor has reached its
// trigger rectangle.
func (i *Interactions) TickInteractions(ctx context.Context, now time.Time) {
	i.mu.Lock()
	ids := make([]string, 0, len(i.pending))
	for id := range i.pending {
		ids = append(ids, id)
	}
	i.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		i.checkPending(ctx, id)
	}
}

func (i *Interactions) checkPending(ctx context.Context, actorID string) {
	i.mu.Lock()
	p, ok := i.pending[actorID]
	i.mu.Unlock()
	if !ok {
		return
	}

	actor, ok := i.store.Get(actorID)
	if !ok || actor.AreaID != p.AreaID {
		i.CancelPending(actorID)
		return
	}
	area, err := i.areas.Area(ctx, p.AreaID)
	if err != nil {
		i.log.Warn("pending teleport lost its area", zap.String("actor", actorID), zap.Error(err))
		i.CancelPending(actorID)
		return
	}
	tp, ok := area.TeleportByID(p.TeleportID)
	if !ok {
		i.CancelPending(actorID)
		return
	}
	if !tp.Contains(actor.X, actor.Y) {
		// The walk may have been consumed short of the trigger; put the
		// actor back on course.
		if _, walking := i.movement.Queue(actorID); !walking {
			if err := i.movement.reroute(ctx, actorID, p.TileX, p.TileY); err != nil {
				i.CancelPending(actorID)
			}
		}
		return
	}

	i.CancelPending(actorID)
	if err := i.executeTransition(ctx, actorID, area, tp); err != nil {
		i.log.Warn("teleport transition failed",
			zap.String("actor", actorID), zap.String("teleport", tp.ID), zap.Error(err))
	}
}

// executeTransition performs the area change: store, spatial index, session
// room, and the join/leave/state events on both sides.
func (i *Interactions) executeTransition(ctx context.Context, actorID string, src *world.Area, tp world.Teleport) error {
	dest, err := i.resolveDestination(ctx, tp)
	if err != nil {
		return err
	}

	actor, ok := i.store.Get(actorID)
	if !ok {
		return world.ErrActorNotFound
	}
	oldX, oldY := actor.X, actor.Y

	i.movement.DeleteQueue(actorID)
	if err := i.store.ChangeArea(ctx, actorID, dest.ID, tp.DestX, tp.DestY); err != nil {
		return err
	}
	i.index.Update(actorID, src.ID, oldX, oldY, dest.ID, tp.DestX, tp.DestY)
	if i.rooms != nil {
		i.rooms.MoveActorRoom(actorID, src.ID, dest.ID, tp.DestX, tp.DestY)
	}

	i.bc.BroadcastArea(src.ID, proto.ActorLeft{Type: proto.EvtActorLeft, ID: actorID})

	moved, ok := i.store.Get(actorID)
	if !ok {
		return world.ErrActorNotFound
	}
	info := proto.ActorInfoFromSnapshot(moved.Snapshot())
	i.bc.BroadcastArea(dest.ID, proto.ActorJoined{Type: proto.EvtActorJoined, Actor: info})

	occupants := i.store.InArea(dest.ID)
	infos := make([]proto.ActorInfo, 0, len(occupants))
	for _, snap := range occupants {
		infos = append(infos, proto.ActorInfoFromSnapshot(snap))
	}
	var zones []proto.ZoneInfo
	if i.zones != nil {
		zones = i.zones.ZonesInArea(dest.ID)
	}
	i.bc.SendActor(actorID, proto.InitialState{
		Type:  proto.EvtTeleported,
		Actor: info,
		Area: proto.AreaInfo{
			ID:       dest.ID,
			Name:     dest.Name,
			Width:    dest.Width,
			Height:   dest.Height,
			TileSize: dest.TileSize,
		},
		Occupants: infos,
		Zones:     zones,
	})
	return nil
}

// resolveDestination prefers the teleport's destination area id and falls
// back to the destination name.
func (i *Interactions) resolveDestination(ctx context.Context, tp world.Teleport) (*world.Area, error) {
	if tp.DestAreaID != "" {
		dest, err := i.areas.Area(ctx, tp.DestAreaID)
		if err == nil {
			return dest, nil
		}
		i.log.Warn("teleport destination id unresolved",
			zap.String("teleport", tp.ID), zap.String("dest", tp.DestAreaID), zap.Error(err))
	}
	if tp.DestAreaName != "" {
		dest, err := i.areas.AreaByName(ctx, tp.DestAreaName)
		if err == nil {
			return dest, nil
		}
	}
	return nil, ErrInvalidTransition
}
