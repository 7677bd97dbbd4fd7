package world

// Snapshot is the persisted view of an actor: what survives a disconnect.
// Movement/attack/regen timestamps and the attacking flag are deliberately
// absent. The same shape is written to the durable repository and to the
// shared cache.
type Snapshot struct {
	ID            string          `db:"id" json:"id" msgpack:"id"`
	UserID        string          `db:"user_id" json:"userId" msgpack:"uid"`
	Name          string          `db:"name" json:"name" msgpack:"n"`
	AreaID        string          `db:"area_id" json:"areaId" msgpack:"a"`
	FactionID     string          `db:"faction_id" json:"factionId" msgpack:"f"`
	ClassID       string          `db:"class_id" json:"classId" msgpack:"c"`
	X             int             `db:"x" json:"x" msgpack:"x"`
	Y             int             `db:"y" json:"y" msgpack:"y"`
	Level         int             `db:"level" json:"level" msgpack:"lv"`
	HP            int             `db:"hp" json:"hp" msgpack:"hp"`
	MaxHP         int             `db:"max_hp" json:"maxHp" msgpack:"mhp"`
	Defense       int             `db:"defense" json:"defense" msgpack:"def"`
	BaseDamage    int             `db:"base_damage" json:"baseDamage" msgpack:"dmg"`
	AttackRange   int             `db:"attack_range" json:"attackRange" msgpack:"rng"`
	AttackSpeedMs int64           `db:"attack_speed_ms" json:"attackSpeedMs" msgpack:"spd"`
	Alive         bool            `db:"alive" json:"alive" msgpack:"al"`
	Skills        []SkillSnapshot `db:"-" json:"skills,omitempty" msgpack:"sk"`
}

// SkillSnapshot persists one owned skill instance. Cooldown bookkeeping is
// transient and resets on reconnect.
type SkillSnapshot struct {
	SkillID string `db:"skill_id" json:"skillId" msgpack:"id"`
	Level   int    `db:"level" json:"level" msgpack:"lv"`
}
