package proto

import "riftvale/server/internal/world"

// Inbound command types.
const (
	CmdMoveTo       = "move"
	CmdAttackMove   = "attack"
	CmdUseSkill     = "skill"
	CmdCancelAttack = "cancel_attack"
	CmdUseTeleport  = "teleport"
	CmdInitialState = "state_request"
	CmdChat         = "chat"
)

// Outbound event types.
const (
	EvtInitialState = "state"
	EvtMoveBatch    = "move_batch"
	EvtCombat       = "combat"
	EvtAttackStart  = "attack_start"
	EvtCooldown     = "cooldown"
	EvtZoneSpawned  = "zone_spawned"
	EvtZoneRemoved  = "zone_removed"
	EvtActorJoined  = "actor_joined"
	EvtActorLeft    = "actor_left"
	EvtTeleported   = "teleported"
	EvtReplaced     = "connection_replaced"
	EvtChat         = "chat"
	EvtRegen        = "regen"
)

// Command is the single inbound message shape; the Type field selects which
// of the optional fields are meaningful. Move targets are tile coordinates,
// skill points are pixels. The coordinates are pointers so an absent point
// stays distinguishable from a cast at the origin.
type Command struct {
	Type       string `json:"type"`
	X          *int   `json:"x,omitempty"`
	Y          *int   `json:"y,omitempty"`
	TargetID   string `json:"targetId,omitempty"`
	SkillID    string `json:"skillId,omitempty"`
	TeleportID string `json:"teleportId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Point returns the command's coordinate pair and whether both were supplied.
func (c Command) Point() (x, y int, ok bool) {
	if c.X == nil || c.Y == nil {
		return 0, 0, false
	}
	return *c.X, *c.Y, true
}

// ActorInfo is the public view of an actor sent to clients.
type ActorInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FactionID string `json:"factionId"`
	ClassID   string `json:"classId"`
	AreaID    string `json:"areaId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Level     int    `json:"level"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"maxHp"`
	Alive     bool   `json:"alive"`
}

// ActorInfoFromSnapshot converts a persisted snapshot to the client view.
func ActorInfoFromSnapshot(snap world.Snapshot) ActorInfo {
	return ActorInfo{
		ID:        snap.ID,
		Name:      snap.Name,
		FactionID: snap.FactionID,
		ClassID:   snap.ClassID,
		AreaID:    snap.AreaID,
		X:         snap.X,
		Y:         snap.Y,
		Level:     snap.Level,
		HP:        snap.HP,
		MaxHP:     snap.MaxHP,
		Alive:     snap.Alive,
	}
}

// AreaInfo describes the area a client is entering.
type AreaInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	TileSize int    `json:"tileSize"`
}

// ZoneInfo describes one active area-effect zone.
type ZoneInfo struct {
	ID        string `json:"id"`
	CasterID  string `json:"casterId"`
	SkillID   string `json:"skillId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Radius    int    `json:"radius"`
	ExpiresAt int64  `json:"expiresAt"`
}

// PositionUpdate is one entry in a batched movement event.
type PositionUpdate struct {
	ID  string `json:"id"`
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Dir string `json:"dir"`
}

// MovementBatch carries every position change in one area for one tick pass.
type MovementBatch struct {
	Type   string           `json:"type"`
	AreaID string           `json:"areaId"`
	Moves  []PositionUpdate `json:"moves"`
}

// CombatTarget is one damaged actor inside a combat batch.
type CombatTarget struct {
	ID     string `json:"id"`
	HP     int    `json:"hp"`
	Alive  bool   `json:"alive"`
	Damage int    `json:"damage"`
}

// CombatBatch carries the results of one resolved attack or zone tick.
type CombatBatch struct {
	Type    string         `json:"type"`
	AreaID  string         `json:"areaId"`
	Kind    string         `json:"kind"` // "auto" or "skill"
	SkillID string         `json:"skillId,omitempty"`
	Targets []CombatTarget `json:"targets"`
}

// HealthUpdate is one recovered actor inside a regen batch.
type HealthUpdate struct {
	ID string `json:"id"`
	HP int    `json:"hp"`
}

// HealthBatch carries every passive recovery in one area for one regen pass.
type HealthBatch struct {
	Type    string         `json:"type"`
	AreaID  string         `json:"areaId"`
	Targets []HealthUpdate `json:"targets"`
}

// AttackStart announces an attack the moment it begins resolving.
type AttackStart struct {
	Type       string `json:"type"`
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId,omitempty"`
	Kind       string `json:"kind"`
	SkillID    string `json:"skillId,omitempty"`
	Dir        string `json:"dir"`
}

// CooldownUpdate tells one caster when a skill comes back up.
type CooldownUpdate struct {
	Type    string `json:"type"`
	SkillID string `json:"skillId"`
	ReadyAt int64  `json:"readyAt"`
}

// ZoneSpawned announces a new area-effect zone to its area.
type ZoneSpawned struct {
	Type string   `json:"type"`
	Zone ZoneInfo `json:"zone"`
}

// ZoneRemoved announces a zone expiry to its area.
type ZoneRemoved struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ActorJoined announces an arrival to an area.
type ActorJoined struct {
	Type  string    `json:"type"`
	Actor ActorInfo `json:"actor"`
}

// ActorLeft announces a departure from an area.
type ActorLeft struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// InitialState is the full per-client payload sent on join, on request, and
// after a completed teleport.
type InitialState struct {
	Type      string      `json:"type"`
	Actor     ActorInfo   `json:"actor"`
	Area      AreaInfo    `json:"area"`
	Occupants []ActorInfo `json:"occupants"`
	Zones     []ZoneInfo  `json:"zones"`
}

// ConnectionReplaced notifies the older socket when the same user connects
// again; the socket closes immediately after.
type ConnectionReplaced struct {
	Type string `json:"type"`
}

// ChatMessage relays one chat line within an area.
type ChatMessage struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
}
