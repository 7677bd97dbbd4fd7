package sim

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"riftvale/server/internal/grid"
	"riftvale/server/internal/nav"
	"riftvale/server/internal/net/ws"
	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

// zoneTickWindow caps area-effect zones at one damage application per second.
const zoneTickWindow = time.Second

const (
	actionAuto  = "auto"
	actionSkill = "skill"
)

type actionState int

const (
	awaitingPath actionState = iota
	movingIntoRange
	readyToExecute
)

// pendingAction is one queued combat intent awaiting range and cooldown
// resolution. Fields are read and written only under the combat lock; the
// tick path works on value copies and writes state back through the pointer
// after re-checking queue identity.
type pendingAction struct {
	ActorID string
	Target  world.Target
	Kind    string
	SkillID string
	State   actionState
}

// zone is one live area-effect zone. Coordinates and radius are pixels.
type zone struct {
	ID         string
	CasterID   string
	AreaID     string
	SkillID    string
	X          int
	Y          int
	Radius     int
	DPS        int
	ExpiresAt  time.Time
	LastTickAt time.Time
}

// Combat owns the pending-action queues and the area-effect zones, resolving
// both on their tick cadences.
type Combat struct {
	mu     deadlock.Mutex
	queues map[string][]*pendingAction
	zones  map[string]*zone

	nextZone atomic.Uint64

	store    *world.Store
	index    *grid.Index
	planner  *nav.Service
	areas    *world.Catalog
	movement *Movement
	bc       Broadcaster
	log      *zap.Logger
}

// NewCombat builds the combat resolver.
func NewCombat(store *world.Store, index *grid.Index, planner *nav.Service, areas *world.Catalog, movement *Movement, bc Broadcaster, log *zap.Logger) *Combat {
	if log == nil {
		log = zap.NewNop()
	}
	return &Combat{
		queues:   make(map[string][]*pendingAction),
		zones:    make(map[string]*zone),
		store:    store,
		index:    index,
		planner:  planner,
		areas:    areas,
		movement: movement,
		bc:       bc,
		log:      log,
	}
}

// RequestAttackMove queues an auto-attack against a hostile actor, routing
// the attacker into range first when needed.
func (c *Combat) RequestAttackMove(ctx context.Context, sess *ws.Session, targetID string) error {
	if !sess.Complete() {
		return ErrSessionInvalid
	}
	attacker, ok := c.store.Get(sess.ActorID)
	if !ok {
		return world.ErrActorNotFound
	}
	target, ok := c.store.Get(targetID)
	if !ok {
		return ErrTargetNotFound
	}
	if !attacker.HostileTo(target) {
		return ErrNotHostile
	}
	return c.enqueue(ctx, sess.ActorID, world.ActorTarget(targetID), actionAuto, "")
}

// RequestUseSkill queues a skill use after validating ownership and the
// skill-kind's target shape. hasPoint reports whether the client actually
// supplied a ground point; (0,0) is a legal cast location.
func (c *Combat) RequestUseSkill(ctx context.Context, sess *ws.Session, skillID, targetID string, pointX, pointY int, hasPoint bool) error {
	if !sess.Complete() {
		return ErrSessionInvalid
	}
	attacker, ok := c.store.Get(sess.ActorID)
	if !ok {
		return world.ErrActorNotFound
	}
	st, owned := attacker.Skills[skillID]
	if !owned || st.Skill == nil {
		return ErrSkillNotOwned
	}

	var target world.Target
	switch st.Skill.Kind {
	case world.SkillSingleTarget, world.SkillDebuff:
		if targetID == "" {
			return ErrInvalidTarget
		}
		if _, ok := c.store.Get(targetID); !ok {
			return ErrTargetNotFound
		}
		target = world.ActorTarget(targetID)
	case world.SkillArea:
		if !hasPoint {
			return ErrInvalidTarget
		}
		target = world.PointTarget(pointX, pointY)
	case world.SkillSelf, world.SkillBuff:
		target = world.ActorTarget(sess.ActorID)
	case world.SkillPassive:
		return ErrInvalidTarget
	default:
		return ErrInvalidTarget
	}
	return c.enqueue(ctx, sess.ActorID, target, actionSkill, skillID)
}

// RequestAttackCancel clears the actor's entire pending queue and its target
// flags. Idempotent.
func (c *Combat) RequestAttackCancel(sess *ws.Session) error {
	if !sess.Complete() {
		return ErrSessionInvalid
	}
	c.CancelAll(sess.ActorID)
	return nil
}

// CancelAll drops every queued action for an actor and clears its attacking
// state. Called on cancel, death, and disconnect.
func (c *Combat) CancelAll(actorID string) {
	c.mu.Lock()
	delete(c.queues, actorID)
	c.mu.Unlock()
	c.store.Update(actorID, func(a *world.Actor) {
		a.Attacking = false
		a.Target = world.NoTarget()
	})
}

// enqueue resolves range for a new action and admits it to the actor's queue
// under the chaining rules.
func (c *Combat) enqueue(ctx context.Context, actorID string, target world.Target, kind, skillID string) error {
	state, err := c.routeIntoRange(ctx, pendingAction{ActorID: actorID, Target: target, Kind: kind, SkillID: skillID})
	if err != nil {
		return err
	}
	action := &pendingAction{ActorID: actorID, Target: target, Kind: kind, SkillID: skillID, State: state}

	c.mu.Lock()
	queue := c.queues[actorID]
	switch kind {
	case actionAuto:
		replaced := false
		for _, existing := range queue {
			if existing.Kind == actionAuto {
				existing.Target = target
				existing.State = state
				replaced = true
				break
			}
		}
		if !replaced {
			queue = append(queue, action)
		}
	case actionSkill:
		if n := len(queue); n > 0 && queue[n-1].Kind == actionAuto {
			queue = append(queue[:n-1], action, queue[n-1])
		} else {
			queue = append(queue, action)
			if skill := c.skillOf(actorID, skillID); skill != nil && skill.Kind.ChainsAutoAttack() {
				queue = append(queue, &pendingAction{
					ActorID: actorID,
					Target:  target,
					Kind:    actionAuto,
					State:   state,
				})
			}
		}
	}
	c.queues[actorID] = queue
	c.mu.Unlock()

	c.store.Update(actorID, func(a *world.Actor) {
		a.Attacking = true
		a.Target = target
	})
	return nil
}

// routeIntoRange recomputes the path between attacker and target, truncating
// the movement queue to the edge of range, and returns the resulting action
// state. It takes the action by value; the caller owns the write-back.
func (c *Combat) routeIntoRange(ctx context.Context, action pendingAction) (actionState, error) {
	attacker, ok := c.store.Get(action.ActorID)
	if !ok {
		return awaitingPath, world.ErrActorNotFound
	}
	area, err := c.areas.Area(ctx, attacker.AreaID)
	if err != nil {
		return awaitingPath, err
	}
	tileSize := area.TileSize
	if tileSize <= 0 {
		tileSize = world.TileSize
	}

	var toX, toY int
	switch action.Target.Kind {
	case world.TargetActor:
		target, ok := c.store.Get(action.Target.ActorID)
		if !ok || target.AreaID != attacker.AreaID {
			return awaitingPath, ErrTargetNotFound
		}
		toX, toY = target.Tile(tileSize)
	case world.TargetPoint:
		toX, toY = action.Target.X/tileSize, action.Target.Y/tileSize
	default:
		return awaitingPath, ErrInvalidTarget
	}

	fromX, fromY := attacker.Tile(tileSize)
	from := nav.Point{X: fromX, Y: fromY}
	to := nav.Point{X: toX, Y: toY}

	actingRange := attacker.AttackRange
	if action.Kind == actionSkill {
		if skill := c.skillOf(action.ActorID, action.SkillID); skill != nil && skill.Range > 0 {
			actingRange = skill.Range
		}
	}

	if from == to {
		c.movement.DeleteQueue(action.ActorID)
		return readyToExecute, nil
	}
	steps := c.planner.StepPath(ctx, attacker.AreaID, from, to, area)
	if len(steps) == 0 {
		return awaitingPath, ErrUnreachable
	}
	if len(steps) > actingRange {
		c.movement.SetQueue(&MovementQueue{
			ActorID: action.ActorID,
			UserID:  attacker.UserID,
			Steps:   steps[:len(steps)-actingRange],
		})
		return movingIntoRange, nil
	}
	c.movement.DeleteQueue(action.ActorID)
	return readyToExecute, nil
}

// TickActions resolves the head of every non-empty queue: re-path while out
// of range, then gate on cooldowns and execute.
func (c *Combat) TickActions(ctx context.Context, now time.Time) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.queues))
	for id := range c.queues {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		c.resolveHead(ctx, id, now)
	}
}

// resolveHead advances one actor's head action for this tick. Any missing
// actor, target, or area aborts silently; the queue is re-evaluated on the
// next tick.
func (c *Combat) resolveHead(ctx context.Context, actorID string, now time.Time) {
	c.mu.Lock()
	queue := c.queues[actorID]
	if len(queue) == 0 {
		delete(c.queues, actorID)
		c.mu.Unlock()
		return
	}
	head := queue[0]
	act := *head
	c.mu.Unlock()

	attacker, ok := c.store.Get(actorID)
	if !ok || !attacker.Alive {
		c.CancelAll(actorID)
		return
	}

	// Targets move; re-route every tick until in range.
	state, err := c.routeIntoRange(ctx, act)
	if err != nil {
		switch err {
		case ErrTargetNotFound:
			c.removeHead(actorID, head)
		case ErrUnreachable:
			// Leave the queue untouched for the next tick.
		default:
			c.log.Debug("action aborted", zap.String("actor", actorID), zap.Error(err))
		}
		return
	}

	// Write the state back only while this entry is still the head and has
	// not been retargeted; a raced command supersedes the stale routing.
	c.mu.Lock()
	queue = c.queues[actorID]
	if len(queue) == 0 || queue[0] != head || head.Target != act.Target {
		c.mu.Unlock()
		return
	}
	head.State = state
	c.mu.Unlock()
	if state != readyToExecute {
		return
	}

	switch act.Kind {
	case actionAuto:
		c.executeAuto(actorID, head, act, now)
	case actionSkill:
		c.executeSkill(ctx, actorID, head, act, now)
	}
}

// executeAuto applies one auto-attack swing. The entry stays queued until the
// target dies or the attack is cancelled; the attack-speed gate rate-limits
// repeats. The head pointer serves only as removal identity.
func (c *Combat) executeAuto(actorID string, head *pendingAction, act pendingAction, now time.Time) {
	if act.Target.Kind != world.TargetActor {
		c.removeHead(actorID, head)
		return
	}
	targetID := act.Target.ActorID

	var (
		delta  proto.CombatTarget
		areaID string
		dir    Facing
		swung  bool
		died   bool
	)
	ok := c.store.UpdatePair(actorID, targetID, func(attacker, target *world.Actor) {
		if !target.Alive {
			died = true
			return
		}
		if now.Sub(attacker.LastAttackAt) < attacker.AttackSpeed {
			return
		}
		dealt := target.ApplyDamage(attacker.BaseDamage)
		attacker.LastAttackAt = now
		areaID = attacker.AreaID
		dir = facingToward(attacker.X, attacker.Y, target.X, target.Y)
		delta = proto.CombatTarget{ID: target.ID, HP: target.HP, Alive: target.Alive, Damage: dealt}
		died = !target.Alive
		swung = true
	})
	if !ok {
		c.removeHead(actorID, head)
		return
	}
	if swung {
		c.bc.BroadcastArea(areaID, proto.AttackStart{
			Type:       proto.EvtAttackStart,
			AttackerID: actorID,
			TargetID:   targetID,
			Kind:       actionAuto,
			Dir:        string(dir),
		})
		c.bc.BroadcastArea(areaID, proto.CombatBatch{
			Type:    proto.EvtCombat,
			AreaID:  areaID,
			Kind:    actionAuto,
			Targets: []proto.CombatTarget{delta},
		})
	}
	if died {
		c.removeHead(actorID, head)
		c.CancelAll(targetID)
	}
}

// executeSkill applies a skill once its cooldown allows, always consuming the
// queue entry and notifying the caster of the new cooldown.
func (c *Combat) executeSkill(ctx context.Context, actorID string, head *pendingAction, act pendingAction, now time.Time) {
	skill := c.skillOf(actorID, act.SkillID)
	if skill == nil {
		c.removeHead(actorID, head)
		return
	}

	var err error
	switch {
	case skill.Kind == world.SkillArea && act.Target.Kind == world.TargetPoint:
		err = c.applyAreaSkill(ctx, actorID, act.SkillID, act.Target.X, act.Target.Y, now)
	case act.Target.Kind == world.TargetActor:
		err = c.applySkill(actorID, act.Target.ActorID, act.SkillID, now)
	default:
		err = ErrInvalidTarget
	}

	switch err {
	case nil:
		c.removeHead(actorID, head)
	case ErrOnCooldown:
		// Keep the head; it executes when the cooldown elapses.
	default:
		c.log.Debug("skill aborted",
			zap.String("actor", actorID), zap.String("skill", act.SkillID), zap.Error(err))
		c.removeHead(actorID, head)
	}
}

// applySkill runs the single-target damage path: cooldown gate, damage,
// stamps, broadcast, and the caster's cooldown update.
func (c *Combat) applySkill(attackerID, targetID, skillID string, now time.Time) error {
	var (
		delta   proto.CombatTarget
		areaID  string
		dir     Facing
		readyAt time.Time
		err     error
	)
	ok := c.store.UpdatePair(attackerID, targetID, func(attacker, target *world.Actor) {
		st := attacker.Skills[skillID]
		if st == nil || st.Skill == nil {
			err = ErrSkillNotOwned
			return
		}
		if !st.Ready(now) {
			err = ErrOnCooldown
			return
		}
		var dealt int
		switch st.Skill.Kind {
		case world.SkillSelf, world.SkillBuff:
			dealt = -target.Heal(st.Skill.Damage)
		default:
			dealt = target.ApplyDamage(st.Skill.Damage)
		}
		st.Stamp(now)
		attacker.LastAttackAt = now
		readyAt = st.CooldownEndsAt
		areaID = attacker.AreaID
		dir = facingToward(attacker.X, attacker.Y, target.X, target.Y)
		delta = proto.CombatTarget{ID: target.ID, HP: target.HP, Alive: target.Alive, Damage: dealt}
	})
	if !ok {
		return ErrTargetNotFound
	}
	if err != nil {
		return err
	}

	c.bc.BroadcastArea(areaID, proto.AttackStart{
		Type:       proto.EvtAttackStart,
		AttackerID: attackerID,
		TargetID:   targetID,
		Kind:       actionSkill,
		SkillID:    skillID,
		Dir:        string(dir),
	})
	c.bc.BroadcastArea(areaID, proto.CombatBatch{
		Type:    proto.EvtCombat,
		AreaID:  areaID,
		Kind:    actionSkill,
		SkillID: skillID,
		Targets: []proto.CombatTarget{delta},
	})
	c.bc.SendActor(attackerID, proto.CooldownUpdate{
		Type:    proto.EvtCooldown,
		SkillID: skillID,
		ReadyAt: readyAt.UnixMilli(),
	})
	if !delta.Alive {
		c.CancelAll(targetID)
	}
	return nil
}

// applyAreaSkill spawns an area-effect zone at the target point. The skill
// must be area-kind with a configured radius and duration.
func (c *Combat) applyAreaSkill(ctx context.Context, attackerID, skillID string, x, y int, now time.Time) error {
	attacker, ok := c.store.Get(attackerID)
	if !ok {
		return world.ErrActorNotFound
	}
	area, err := c.areas.Area(ctx, attacker.AreaID)
	if err != nil {
		return err
	}
	tileSize := area.TileSize
	if tileSize <= 0 {
		tileSize = world.TileSize
	}

	var (
		readyAt time.Time
		skill   *world.Skill
		gateErr error
	)
	c.store.Update(attackerID, func(a *world.Actor) {
		st := a.Skills[skillID]
		if st == nil || st.Skill == nil {
			gateErr = ErrSkillNotOwned
			return
		}
		if st.Skill.Kind != world.SkillArea || st.Skill.AreaRadius <= 0 || st.Skill.DurationMs <= 0 {
			gateErr = ErrInvalidAreaSkill
			return
		}
		if !st.Ready(now) {
			gateErr = ErrOnCooldown
			return
		}
		st.Stamp(now)
		a.LastAttackAt = now
		readyAt = st.CooldownEndsAt
		skill = st.Skill
	})
	if gateErr != nil {
		return gateErr
	}

	z := &zone{
		ID:        fmt.Sprintf("zone-%d", c.nextZone.Add(1)),
		CasterID:  attackerID,
		AreaID:    attacker.AreaID,
		SkillID:   skillID,
		X:         x,
		Y:         y,
		Radius:    skill.AreaRadius * tileSize,
		DPS:       skill.DamagePerSecond,
		ExpiresAt: now.Add(time.Duration(skill.DurationMs) * time.Millisecond),
	}
	c.mu.Lock()
	c.zones[z.ID] = z
	c.mu.Unlock()

	c.bc.BroadcastArea(z.AreaID, proto.ZoneSpawned{Type: proto.EvtZoneSpawned, Zone: zoneInfo(z)})
	c.bc.SendActor(attackerID, proto.CooldownUpdate{
		Type:    proto.EvtCooldown,
		SkillID: skillID,
		ReadyAt: readyAt.UnixMilli(),
	})
	return nil
}

// TickZones expires zones and applies at most one damage window per second
// to the living hostiles inside each.
func (c *Combat) TickZones(ctx context.Context, now time.Time) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.zones))
	for id := range c.zones {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		c.tickZone(id, now)
	}
}

func (c *Combat) tickZone(zoneID string, now time.Time) {
	c.mu.Lock()
	z, ok := c.zones[zoneID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if !now.Before(z.ExpiresAt) {
		c.removeZone(z)
		return
	}
	if now.Sub(z.LastTickAt) < zoneTickWindow {
		return
	}

	caster, ok := c.store.Get(z.CasterID)
	if !ok || caster.Skills[z.SkillID] == nil {
		c.removeZone(z)
		return
	}

	ids, _ := c.index.QueryRadius(z.AreaID, z.X, z.Y, z.Radius)
	sort.Strings(ids)
	deltas := make([]proto.CombatTarget, 0, len(ids))
	for _, id := range ids {
		if id == z.CasterID {
			continue
		}
		var delta proto.CombatTarget
		var hit bool
		c.store.UpdatePair(z.CasterID, id, func(cs, victim *world.Actor) {
			if !victim.Alive || victim.AreaID != z.AreaID || !cs.HostileTo(victim) {
				return
			}
			dx, dy := victim.X-z.X, victim.Y-z.Y
			if dx*dx+dy*dy > z.Radius*z.Radius {
				return
			}
			dealt := victim.ApplyDamage(z.DPS)
			delta = proto.CombatTarget{ID: victim.ID, HP: victim.HP, Alive: victim.Alive, Damage: dealt}
			hit = true
		})
		if hit {
			deltas = append(deltas, delta)
			if !delta.Alive {
				c.CancelAll(delta.ID)
			}
		}
	}

	z.LastTickAt = now
	if len(deltas) > 0 {
		c.bc.BroadcastArea(z.AreaID, proto.CombatBatch{
			Type:    proto.EvtCombat,
			AreaID:  z.AreaID,
			Kind:    actionSkill,
			SkillID: z.SkillID,
			Targets: deltas,
		})
	}
}

func (c *Combat) removeZone(z *zone) {
	c.mu.Lock()
	delete(c.zones, z.ID)
	c.mu.Unlock()
	c.bc.BroadcastArea(z.AreaID, proto.ZoneRemoved{Type: proto.EvtZoneRemoved, ID: z.ID})
}

// ZonesInArea lists the live zones in one area for snapshot payloads.
func (c *Combat) ZonesInArea(areaID string) []proto.ZoneInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.ZoneInfo, 0, 4)
	for _, z := range c.zones {
		if z.AreaID == areaID {
			out = append(out, zoneInfo(z))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QueueLen reports the pending-action count for an actor; used by tests and
// diagnostics.
func (c *Combat) QueueLen(actorID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[actorID])
}

func (c *Combat) removeHead(actorID string, head *pendingAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.queues[actorID]
	if len(queue) == 0 || queue[0] != head {
		return
	}
	queue = queue[1:]
	if len(queue) == 0 {
		delete(c.queues, actorID)
	} else {
		c.queues[actorID] = queue
	}
}

func (c *Combat) skillOf(actorID, skillID string) *world.Skill {
	actor, ok := c.store.Get(actorID)
	if !ok {
		return nil
	}
	st := actor.Skills[skillID]
	if st == nil {
		return nil
	}
	return st.Skill
}

func zoneInfo(z *zone) proto.ZoneInfo {
	return proto.ZoneInfo{
		ID:        z.ID,
		CasterID:  z.CasterID,
		SkillID:   z.SkillID,
		X:         z.X,
		Y:         z.Y,
		Radius:    z.Radius,
		ExpiresAt: z.ExpiresAt.UnixMilli(),
	}
}
