package world

import "time"

// TileSize is the edge length of one map tile in pixels. Area records carry
// their own tile size but every shipped area uses this value.
const TileSize = 32

// TargetKind discriminates the target variant on actors and pending actions.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetActor
	TargetPoint
)

// Target is a tagged variant: nothing, another actor, or a point in the area.
// Consumers must switch on Kind exhaustively.
type Target struct {
	Kind    TargetKind
	ActorID string
	X       int
	Y       int
}

// NoTarget returns the empty variant.
func NoTarget() Target { return Target{Kind: TargetNone} }

// ActorTarget returns a target referencing another actor.
func ActorTarget(actorID string) Target {
	return Target{Kind: TargetActor, ActorID: actorID}
}

// PointTarget returns a target referencing an area point in pixels.
func PointTarget(x, y int) Target {
	return Target{Kind: TargetPoint, X: x, Y: y}
}

// SkillKind classifies a skill's targeting and execution shape.
type SkillKind string

const (
	SkillSingleTarget SkillKind = "single_target"
	SkillArea         SkillKind = "area"
	SkillSelf         SkillKind = "self"
	SkillPassive      SkillKind = "passive"
	SkillBuff         SkillKind = "buff"
	SkillDebuff       SkillKind = "debuff"
)

// ChainsAutoAttack reports whether executing a skill of this kind queues a
// follow-up auto-attack on the same target. Only single-target skills chain.
func (k SkillKind) ChainsAutoAttack() bool { return k == SkillSingleTarget }

// Skill is the static definition shared by every instance of a skill.
type Skill struct {
	ID              string
	Name            string
	Kind            SkillKind
	Damage          int
	Range           int // tiles
	CooldownMs      int64
	AreaRadius      int // tiles, area skills only
	DurationMs      int64
	DamagePerSecond int
}

// SkillState is one actor's owned instance of a skill.
type SkillState struct {
	Skill          *Skill
	Level          int
	LastUsedAt     time.Time
	CooldownEndsAt time.Time
}

// Ready reports whether the skill's cooldown has elapsed at the given time.
func (s *SkillState) Ready(now time.Time) bool {
	if s == nil {
		return false
	}
	return !now.Before(s.CooldownEndsAt)
}

// Stamp records a use at the given time and arms the cooldown.
func (s *SkillState) Stamp(now time.Time) {
	if s == nil || s.Skill == nil {
		return
	}
	s.LastUsedAt = now
	s.CooldownEndsAt = now.Add(time.Duration(s.Skill.CooldownMs) * time.Millisecond)
}

// Actor is the authoritative live record for one connected character. The
// identity and stat fields are fixed after hydration; position, health,
// target, and the timestamps are mutated by the tick subsystems through the
// owning Store.
type Actor struct {
	ID        string
	UserID    string
	Name      string
	AreaID    string
	FactionID string
	ClassID   string

	X int
	Y int

	Level       int
	HP          int
	MaxHP       int
	Defense     int
	BaseDamage  int
	AttackRange int // tiles
	AttackSpeed time.Duration

	Alive     bool
	Attacking bool
	Target    Target

	Skills map[string]*SkillState

	LastMoveAt   time.Time
	LastAttackAt time.Time
	LastRegenAt  time.Time
}

// Tile returns the actor's tile coordinate for the given tile size.
func (a *Actor) Tile(tileSize int) (int, int) {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	return a.X / tileSize, a.Y / tileSize
}

// HostileTo reports whether the two actors belong to opposing factions.
func (a *Actor) HostileTo(other *Actor) bool {
	if a == nil || other == nil || a.ID == other.ID {
		return false
	}
	return a.FactionID != other.FactionID
}

// ApplyDamage reduces hp by the given amount after defense, clamping at zero
// and clearing the alive flag on a kill. It returns the damage dealt.
func (a *Actor) ApplyDamage(amount int) int {
	if a == nil || !a.Alive || amount <= 0 {
		return 0
	}
	dealt := amount - a.Defense
	if dealt < 1 {
		dealt = 1
	}
	if dealt >= a.HP {
		dealt = a.HP
		a.HP = 0
		a.Alive = false
		a.Attacking = false
		a.Target = NoTarget()
		return dealt
	}
	a.HP -= dealt
	return dealt
}

// Heal restores hp clamped at the maximum. Dead actors are not healed.
func (a *Actor) Heal(amount int) int {
	if a == nil || !a.Alive || amount <= 0 {
		return 0
	}
	healed := amount
	if a.HP+healed > a.MaxHP {
		healed = a.MaxHP - a.HP
	}
	a.HP += healed
	return healed
}

// Snapshot copies the persisted fields, excluding the transient timestamps
// and the attacking flag.
func (a *Actor) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            a.ID,
		UserID:        a.UserID,
		Name:          a.Name,
		AreaID:        a.AreaID,
		FactionID:     a.FactionID,
		ClassID:       a.ClassID,
		X:             a.X,
		Y:             a.Y,
		Level:         a.Level,
		HP:            a.HP,
		MaxHP:         a.MaxHP,
		Defense:       a.Defense,
		BaseDamage:    a.BaseDamage,
		AttackRange:   a.AttackRange,
		AttackSpeedMs: a.AttackSpeed.Milliseconds(),
		Alive:         a.Alive,
	}
	for id, st := range a.Skills {
		snap.Skills = append(snap.Skills, SkillSnapshot{SkillID: id, Level: st.Level})
	}
	return snap
}
