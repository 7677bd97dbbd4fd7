package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riftvale/server/internal/proto"
	"riftvale/server/internal/world"
)

func TestRequestAttackMoveRejectsFriendlyTarget(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	h.join(t, newActor("a1", "u1", "red", "zone-a", 0, 0))
	h.join(t, newActor("a2", "u2", "red", "zone-a", 32, 0))

	err := h.combat.RequestAttackMove(context.Background(), session("u1", "a1", "zone-a"), "a2")
	require.ErrorIs(t, err, ErrNotHostile)
	require.Zero(t, h.combat.QueueLen("a1"))
}

func TestAutoAttackPersistsUntilTargetDies(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	attacker := newActor("a1", "u1", "red", "zone-a", 0, 0)
	target := newActor("a2", "u2", "blue", "zone-a", 32, 0)
	h.join(t, attacker)
	h.join(t, target)
	ctx := context.Background()

	require.NoError(t, h.combat.RequestAttackMove(ctx, session("u1", "a1", "zone-a"), "a2"))
	require.Equal(t, 1, h.combat.QueueLen("a1"))

	// BaseDamage 10 against Defense 2 lands 8 per swing; 20 hp dies in three.
	now := time.Now()
	h.combat.TickActions(ctx, now)
	got, _ := h.store.Get("a2")
	require.Equal(t, 12, got.HP)
	require.Equal(t, 1, h.combat.QueueLen("a1"))

	// The swing inside the attack-speed window does not land.
	h.combat.TickActions(ctx, now.Add(100*time.Millisecond))
	got, _ = h.store.Get("a2")
	require.Equal(t, 12, got.HP)

	h.combat.TickActions(ctx, now.Add(attacker.AttackSpeed))
	h.combat.TickActions(ctx, now.Add(2*attacker.AttackSpeed))
	got, _ = h.store.Get("a2")
	require.Equal(t, 0, got.HP)
	require.False(t, got.Alive)
	require.Zero(t, h.combat.QueueLen("a1"))
}

func TestAutoAttackRetargetsInsteadOfStacking(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	h.join(t, newActor("a1", "u1", "red", "zone-a", 0, 0))
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 32, 0))
	h.join(t, newActor("a3", "u3", "blue", "zone-a", 0, 32))
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	require.NoError(t, h.combat.RequestAttackMove(ctx, sess, "a2"))
	require.NoError(t, h.combat.RequestAttackMove(ctx, sess, "a3"))
	require.Equal(t, 1, h.combat.QueueLen("a1"))

	h.combat.TickActions(ctx, time.Now())
	a2, _ := h.store.Get("a2")
	a3, _ := h.store.Get("a3")
	require.Equal(t, 20, a2.HP)
	require.Equal(t, 12, a3.HP)
}

func TestAttackMoveOutOfRangeTruncatesApproach(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	h.join(t, newActor("a1", "u1", "red", "zone-a", 0, 0))
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 160, 0))
	ctx := context.Background()

	require.NoError(t, h.combat.RequestAttackMove(ctx, session("u1", "a1", "zone-a"), "a2"))

	// Five tiles away with range one: walk four, stop at the edge of range.
	q, ok := h.movement.Queue("a1")
	require.True(t, ok)
	require.Len(t, q.Steps, 4)
}

func TestSkillChainsTrailingAutoAttack(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	attacker := newActor("a1", "u1", "red", "zone-a", 0, 0)
	giveSkill(attacker, &world.Skill{
		ID: "slash", Name: "Slash", Kind: world.SkillSingleTarget,
		Damage: 15, Range: 1, CooldownMs: 5000,
	})
	h.join(t, attacker)
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 32, 0))
	ctx := context.Background()

	require.NoError(t, h.combat.RequestUseSkill(ctx, session("u1", "a1", "zone-a"), "slash", "a2", 0, 0, false))
	require.Equal(t, 2, h.combat.QueueLen("a1"))

	now := time.Now()
	h.combat.TickActions(ctx, now)
	got, _ := h.store.Get("a2")
	require.Equal(t, 7, got.HP) // 15 less 2 defense
	require.Equal(t, 1, h.combat.QueueLen("a1"))

	direct := h.bc.directEvents("a1")
	require.NotEmpty(t, direct)
	cd, ok := direct[len(direct)-1].(proto.CooldownUpdate)
	require.True(t, ok)
	require.Equal(t, "slash", cd.SkillID)
}

func TestSkillInsertsBeforeTrailingAuto(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	attacker := newActor("a1", "u1", "red", "zone-a", 0, 0)
	giveSkill(attacker, &world.Skill{
		ID: "slash", Name: "Slash", Kind: world.SkillSingleTarget,
		Damage: 15, Range: 1, CooldownMs: 5000,
	})
	h.join(t, attacker)
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 32, 0))
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	require.NoError(t, h.combat.RequestAttackMove(ctx, sess, "a2"))
	require.NoError(t, h.combat.RequestUseSkill(ctx, sess, "slash", "a2", 0, 0, false))
	require.Equal(t, 2, h.combat.QueueLen("a1"))

	// The skill resolves first even though the auto was queued earlier.
	h.combat.TickActions(ctx, time.Now())
	got, _ := h.store.Get("a2")
	require.Equal(t, 7, got.HP)
}

func TestSkillCooldownGatesExecution(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	attacker := newActor("a1", "u1", "red", "zone-a", 0, 0)
	giveSkill(attacker, &world.Skill{
		ID: "slash", Name: "Slash", Kind: world.SkillSingleTarget,
		Damage: 4, Range: 1, CooldownMs: 5000,
	})
	h.join(t, attacker)
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 32, 0))
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	now := time.Now()
	require.NoError(t, h.combat.RequestUseSkill(ctx, sess, "slash", "a2", 0, 0, false))
	h.combat.TickActions(ctx, now)
	got, _ := h.store.Get("a2")
	require.Equal(t, 18, got.HP)

	require.NoError(t, h.combat.RequestUseSkill(ctx, sess, "slash", "a2", 0, 0, false))

	// One millisecond before the cooldown elapses the head stays queued.
	h.combat.TickActions(ctx, now.Add(4999*time.Millisecond))
	got, _ = h.store.Get("a2")
	require.Equal(t, 18, got.HP)

	h.combat.TickActions(ctx, now.Add(5000*time.Millisecond))
	got, _ = h.store.Get("a2")
	require.Equal(t, 16, got.HP)
}

func TestRequestUseSkillValidation(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	attacker := newActor("a1", "u1", "red", "zone-a", 0, 0)
	giveSkill(attacker, &world.Skill{
		ID: "slash", Name: "Slash", Kind: world.SkillSingleTarget,
		Damage: 4, Range: 1, CooldownMs: 1000,
	})
	h.join(t, attacker)
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	err := h.combat.RequestUseSkill(ctx, sess, "unknown", "a1", 0, 0, false)
	require.ErrorIs(t, err, ErrSkillNotOwned)

	err = h.combat.RequestUseSkill(ctx, sess, "slash", "", 0, 0, false)
	require.ErrorIs(t, err, ErrInvalidTarget)

	err = h.combat.RequestUseSkill(ctx, sess, "slash", "ghost", 0, 0, false)
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestAreaSkillSpawnsZoneAndTicksDamage(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	caster := newActor("a1", "u1", "red", "zone-a", 64, 64)
	giveSkill(caster, &world.Skill{
		ID: "firestorm", Name: "Firestorm", Kind: world.SkillArea,
		Range: 5, CooldownMs: 1000, AreaRadius: 2, DurationMs: 3000, DamagePerSecond: 5,
	})
	victim := newActor("a2", "u2", "blue", "zone-a", 96, 64)
	victim.Defense = 0
	ally := newActor("a3", "u3", "red", "zone-a", 64, 96)
	h.join(t, caster)
	h.join(t, victim)
	h.join(t, ally)
	ctx := context.Background()

	require.NoError(t, h.combat.RequestUseSkill(ctx, session("u1", "a1", "zone-a"), "firestorm", "", 64, 64, true))
	now := time.Now()
	h.combat.TickActions(ctx, now)
	require.Len(t, h.combat.ZonesInArea("zone-a"), 1)

	h.combat.TickZones(ctx, now)
	got, _ := h.store.Get("a2")
	require.Equal(t, 15, got.HP)

	// Inside the one-second window the zone does not tick again.
	h.combat.TickZones(ctx, now.Add(200*time.Millisecond))
	got, _ = h.store.Get("a2")
	require.Equal(t, 15, got.HP)

	// Same-faction bystanders and the caster are never hit.
	allyGot, _ := h.store.Get("a3")
	require.Equal(t, 20, allyGot.HP)
	casterGot, _ := h.store.Get("a1")
	require.Equal(t, 20, casterGot.HP)

	// Past its duration the zone expires and announces removal.
	h.combat.TickZones(ctx, now.Add(4*time.Second))
	require.Empty(t, h.combat.ZonesInArea("zone-a"))

	var removed bool
	for _, evt := range h.bc.areaEvents("zone-a") {
		if _, ok := evt.(proto.ZoneRemoved); ok {
			removed = true
		}
	}
	require.True(t, removed)
}

func TestAreaSkillTargetPointPresence(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	caster := newActor("a1", "u1", "red", "zone-a", 0, 0)
	giveSkill(caster, &world.Skill{
		ID: "firestorm", Name: "Firestorm", Kind: world.SkillArea,
		Range: 5, CooldownMs: 1000, AreaRadius: 2, DurationMs: 3000, DamagePerSecond: 5,
	})
	h.join(t, caster)
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 32, 0))
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	// A cast at the origin pixel is legal, even with a stale target id on
	// the command.
	require.NoError(t, h.combat.RequestUseSkill(ctx, sess, "firestorm", "a2", 0, 0, true))
	h.combat.TickActions(ctx, time.Now())
	zones := h.combat.ZonesInArea("zone-a")
	require.Len(t, zones, 1)
	require.Zero(t, zones[0].X)
	require.Zero(t, zones[0].Y)

	// An omitted point is rejected, never treated as the origin.
	err := h.combat.RequestUseSkill(ctx, sess, "firestorm", "", 0, 0, false)
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestConcurrentAttackCommandsDuringTicks(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	h.join(t, newActor("a1", "u1", "red", "zone-a", 0, 0))
	target := newActor("a2", "u2", "blue", "zone-a", 160, 0)
	target.HP = 1000
	target.MaxHP = 1000
	h.join(t, target)
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	// Commands arrive on socket goroutines while the clock ticks; the queue
	// invariants must hold under that interleaving.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = h.combat.RequestAttackMove(ctx, sess, "a2")
		}
	}()

	now := time.Now()
	for i := 0; i < 200; i++ {
		now = now.Add(moveStepInterval)
		h.movement.TickMovement(ctx, now)
		h.combat.TickActions(ctx, now)
		h.combat.TickZones(ctx, now)
	}
	wg.Wait()

	require.Equal(t, 1, h.combat.QueueLen("a1"))
	got, _ := h.store.Get("a2")
	require.True(t, got.Alive)
}

func TestAreaSkillWithoutAreaConfigRejected(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	caster := newActor("a1", "u1", "red", "zone-a", 64, 64)
	giveSkill(caster, &world.Skill{
		ID: "broken", Name: "Broken", Kind: world.SkillArea,
		Range: 5, CooldownMs: 1000,
	})
	h.join(t, caster)
	ctx := context.Background()

	require.NoError(t, h.combat.RequestUseSkill(ctx, session("u1", "a1", "zone-a"), "broken", "", 64, 64, true))
	h.combat.TickActions(ctx, time.Now())

	// The invalid head is consumed without spawning anything.
	require.Empty(t, h.combat.ZonesInArea("zone-a"))
	require.Zero(t, h.combat.QueueLen("a1"))
}

func TestSelfSkillHealsCaster(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	caster := newActor("a1", "u1", "red", "zone-a", 0, 0)
	caster.HP = 5
	giveSkill(caster, &world.Skill{
		ID: "mend", Name: "Mend", Kind: world.SkillSelf,
		Damage: 8, CooldownMs: 1000,
	})
	h.join(t, caster)
	ctx := context.Background()

	require.NoError(t, h.combat.RequestUseSkill(ctx, session("u1", "a1", "zone-a"), "mend", "", 0, 0, false))
	h.combat.TickActions(ctx, time.Now())

	got, _ := h.store.Get("a1")
	require.Equal(t, 13, got.HP)
	require.Zero(t, h.combat.QueueLen("a1"))
}

func TestCancelAttackClearsQueueAndFlags(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	h.join(t, newActor("a1", "u1", "red", "zone-a", 0, 0))
	h.join(t, newActor("a2", "u2", "blue", "zone-a", 32, 0))
	ctx := context.Background()
	sess := session("u1", "a1", "zone-a")

	require.NoError(t, h.combat.RequestAttackMove(ctx, sess, "a2"))
	got, _ := h.store.Get("a1")
	require.True(t, got.Attacking)

	require.NoError(t, h.combat.RequestAttackCancel(sess))
	require.Zero(t, h.combat.QueueLen("a1"))
	got, _ = h.store.Get("a1")
	require.False(t, got.Attacking)
	require.Equal(t, world.TargetNone, got.Target.Kind)

	// Cancelling again is a no-op.
	require.NoError(t, h.combat.RequestAttackCancel(sess))
}

func TestDyingActorLosesItsOwnQueue(t *testing.T) {
	h := newHarness(t, testArea("zone-a", 10))
	attacker := newActor("a1", "u1", "red", "zone-a", 0, 0)
	target := newActor("a2", "u2", "blue", "zone-a", 32, 0)
	target.HP = 8
	h.join(t, attacker)
	h.join(t, target)
	ctx := context.Background()

	// Both sides swing at each other; the one that dies drops its intent.
	require.NoError(t, h.combat.RequestAttackMove(ctx, session("u1", "a1", "zone-a"), "a2"))
	require.NoError(t, h.combat.RequestAttackMove(ctx, session("u2", "a2", "zone-a"), "a1"))

	h.combat.TickActions(ctx, time.Now())
	got, _ := h.store.Get("a2")
	require.False(t, got.Alive)
	require.Zero(t, h.combat.QueueLen("a2"))
}
