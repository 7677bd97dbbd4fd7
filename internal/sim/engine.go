package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"riftvale/server/internal/grid"
	"riftvale/server/internal/net/ws"
	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

// Engine fronts the simulation for the websocket layer: it runs the join and
// disconnect sequences and routes inbound commands to the coordinators.
type Engine struct {
	store        *world.Store
	index        *grid.Index
	areas        *world.Catalog
	registry     *ws.Registry
	movement     *Movement
	combat       *Combat
	interactions *Interactions
	repo         ActorRepository
	presence     PresenceCache
	log          *zap.Logger
}

// NewEngine wires the command router over the tick subsystems.
func NewEngine(store *world.Store, index *grid.Index, areas *world.Catalog, registry *ws.Registry, movement *Movement, combat *Combat, interactions *Interactions, repo ActorRepository, presence PresenceCache, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:        store,
		index:        index,
		areas:        areas,
		registry:     registry,
		movement:     movement,
		combat:       combat,
		interactions: interactions,
		repo:         repo,
		presence:     presence,
		log:          log,
	}
}

// Connect runs the join sequence: evict any previous connection for the user,
// hydrate the owned actor, register it everywhere, and send the initial
// state. A returned error closes the socket.
func (e *Engine) Connect(ctx context.Context, sess *ws.Session, userID, actorID string) error {
	if evicted := e.registry.EvictUser(userID); evicted != nil {
		// Finish the old connection's cleanup before the new join reads
		// state, so the rejoin sees a fully departed actor.
		e.Disconnect(ctx, evicted)
	}

	actor, err := e.repo.FindOwnedActor(ctx, userID, actorID)
	if err != nil {
		return fmt.Errorf("sim: hydrate actor %s: %w", actorID, err)
	}
	area, err := e.areas.Area(ctx, actor.AreaID)
	if err != nil {
		return err
	}

	if err := e.store.Join(ctx, actor, actor.AreaID); err != nil {
		return err
	}
	// The actor is live once joined; read on through the store, never the
	// hydrated pointer.
	joined, ok := e.store.Get(actor.ID)
	if !ok {
		return world.ErrActorNotFound
	}
	if e.presence != nil {
		if err := e.presence.MarkConnected(ctx, userID, sess.ID); err != nil {
			e.log.Warn("connected marker write failed", zap.String("user", userID), zap.Error(err))
		}
	}
	e.index.Add(joined.ID, joined.AreaID, joined.X, joined.Y)

	info := proto.ActorInfoFromSnapshot(joined.Snapshot())
	e.registry.BroadcastArea(joined.AreaID, proto.ActorJoined{Type: proto.EvtActorJoined, Actor: info})
	e.registry.Bind(sess, userID, joined.ID, joined.AreaID, joined.X, joined.Y)

	e.sendState(sess, proto.EvtInitialState, info, area)
	e.log.Info("actor joined",
		zap.String("user", userID), zap.String("actor", joined.ID), zap.String("area", joined.AreaID))
	return nil
}

// Disconnect runs the leave sequence exactly once per session: cancel every
// queued intent, persist the final snapshot, and withdraw the actor from the
// live structures. Safe to call from both the read loop and an eviction.
func (e *Engine) Disconnect(ctx context.Context, sess *ws.Session) {
	if !sess.BeginCleanup() {
		return
	}
	defer sess.CloseConn()

	if !sess.Complete() {
		e.registry.Unregister(sess)
		return
	}
	actorID := sess.ActorID

	e.combat.CancelAll(actorID)
	e.movement.DeleteQueue(actorID)
	e.interactions.CancelPending(actorID)

	if err := e.store.SyncToDurable(ctx, actorID); err != nil && !errors.Is(err, world.ErrActorNotFound) {
		e.log.Error("final sync failed", zap.String("actor", actorID), zap.Error(err))
	}

	areaID := sess.AreaID
	if actor, ok := e.store.Get(actorID); ok {
		areaID = actor.AreaID
	}
	e.index.Remove(actorID)
	e.store.Leave(ctx, sess.UserID, actorID, areaID)
	e.registry.Unregister(sess)
	e.registry.BroadcastArea(areaID, proto.ActorLeft{Type: proto.EvtActorLeft, ID: actorID})
	e.log.Info("actor left", zap.String("actor", actorID), zap.String("area", areaID))
}

// Dispatch routes one inbound command. Command failures are logged and
// swallowed; only an incomplete session terminates the connection.
func (e *Engine) Dispatch(ctx context.Context, sess *ws.Session, cmd proto.Command) {
	if !sess.Complete() {
		e.Disconnect(ctx, sess)
		return
	}

	var err error
	switch cmd.Type {
	case proto.CmdMoveTo:
		x, y, ok := cmd.Point()
		if !ok {
			err = ErrInvalidTarget
			break
		}
		err = e.movement.RequestMoveTo(ctx, sess, x, y)
	case proto.CmdAttackMove:
		err = e.combat.RequestAttackMove(ctx, sess, cmd.TargetID)
	case proto.CmdUseSkill:
		x, y, hasPoint := cmd.Point()
		err = e.combat.RequestUseSkill(ctx, sess, cmd.SkillID, cmd.TargetID, x, y, hasPoint)
	case proto.CmdCancelAttack:
		err = e.combat.RequestAttackCancel(sess)
	case proto.CmdUseTeleport:
		err = e.interactions.RequestUseTeleport(ctx, sess, cmd.TeleportID)
	case proto.CmdInitialState:
		err = e.sendCurrentState(ctx, sess)
	case proto.CmdChat:
		err = e.relayChat(ctx, sess, cmd.Text)
	default:
		e.log.Debug("unknown command", zap.String("type", cmd.Type), zap.String("session", sess.ID))
		return
	}

	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			e.Disconnect(ctx, sess)
			return
		}
		e.log.Debug("command rejected",
			zap.String("type", cmd.Type), zap.String("actor", sess.ActorID), zap.Error(err))
	}
}

// sendCurrentState re-sends the full state payload on client request.
func (e *Engine) sendCurrentState(ctx context.Context, sess *ws.Session) error {
	actor, ok := e.store.Get(sess.ActorID)
	if !ok {
		return world.ErrActorNotFound
	}
	area, err := e.areas.Area(ctx, actor.AreaID)
	if err != nil {
		return err
	}
	e.sendState(sess, proto.EvtInitialState, proto.ActorInfoFromSnapshot(actor.Snapshot()), area)
	return nil
}

func (e *Engine) sendState(sess *ws.Session, evtType string, actor proto.ActorInfo, area *world.Area) {
	occupants := e.store.InArea(area.ID)
	infos := make([]proto.ActorInfo, 0, len(occupants))
	for _, snap := range occupants {
		infos = append(infos, proto.ActorInfoFromSnapshot(snap))
	}
	if err := sess.Send(proto.InitialState{
		Type:  evtType,
		Actor: actor,
		Area: proto.AreaInfo{
			ID:       area.ID,
			Name:     area.Name,
			Width:    area.Width,
			Height:   area.Height,
			TileSize: area.TileSize,
		},
		Occupants: infos,
		Zones:     e.combat.ZonesInArea(area.ID),
	}); err != nil {
		e.log.Warn("state send failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

// relayChat appends the line to the area's capped history and broadcasts it.
func (e *Engine) relayChat(ctx context.Context, sess *ws.Session, text string) error {
	if text == "" {
		return nil
	}
	actor, ok := e.store.Get(sess.ActorID)
	if !ok {
		return world.ErrActorNotFound
	}
	line := fmt.Sprintf("%d|%s|%s", time.Now().UnixMilli(), actor.Name, text)
	if e.presence != nil {
		if err := e.presence.AppendChat(ctx, actor.AreaID, line); err != nil {
			e.log.Warn("chat history append failed", zap.String("area", actor.AreaID), zap.Error(err))
		}
	}
	e.registry.BroadcastArea(actor.AreaID, proto.ChatMessage{
		Type: proto.EvtChat,
		From: actor.Name,
		Text: text,
	})
	return nil
}
