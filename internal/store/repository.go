package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/vmihailenco/msgpack/v5"

	"riftvale/server/internal/world"
)

// ErrNotOwned reports an actor lookup that matched no row for the user.
var ErrNotOwned = errors.New("store: actor not found for user")

// Repository is the durable-storage collaborator. The simulation core only
// ever reads owned actors and writes snapshot fields; catalog CRUD lives in
// the management API, not here.
type Repository struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// NewRepository wraps an existing connection, mainly for tests.
func NewRepository(db *sqlx.DB) *Repository { return &Repository{db: db} }

// Close releases the connection pool.
func (r *Repository) Close() error { return r.db.Close() }

type actorRow struct {
	world.Snapshot
	FactionName string `db:"faction_name"`
	ClassName   string `db:"class_name"`
}

type skillRow struct {
	SkillID         string `db:"skill_id"`
	Level           int    `db:"level"`
	Name            string `db:"name"`
	Kind            string `db:"kind"`
	Damage          int    `db:"damage"`
	Range           int    `db:"range"`
	CooldownMs      int64  `db:"cooldown_ms"`
	AreaRadius      int    `db:"area_radius"`
	DurationMs      int64  `db:"duration_ms"`
	DamagePerSecond int    `db:"damage_per_second"`
}

// FindOwnedActor loads an actor owned by the user with its class, faction and
// location joined, plus the owned skill instances with their definitions.
func (r *Repository) FindOwnedActor(ctx context.Context, userID, actorID string) (*world.Actor, error) {
	const query = `
		SELECT a.id, a.user_id, a.name, a.area_id, a.x, a.y, a.level,
		       a.hp, a.max_hp, a.alive,
		       c.id AS class_id, c.name AS class_name,
		       c.base_damage, c.attack_range, c.attack_speed_ms, c.defense,
		       f.id AS faction_id, f.name AS faction_name
		  FROM actors a
		  JOIN classes c ON c.id = a.class_id
		  JOIN factions f ON f.id = a.faction_id
		 WHERE a.id = $1 AND a.user_id = $2`

	var row actorRow
	if err := r.db.GetContext(ctx, &row, query, actorID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotOwned
		}
		return nil, fmt.Errorf("store: find actor %s: %w", actorID, err)
	}

	actor := hydrate(row.Snapshot)

	const skillQuery = `
		SELECT s.id AS skill_id, owned.level, s.name, s.kind, s.damage,
		       s.range, s.cooldown_ms, s.area_radius, s.duration_ms,
		       s.damage_per_second
		  FROM actor_skills owned
		  JOIN skills s ON s.id = owned.skill_id
		 WHERE owned.actor_id = $1`

	var skills []skillRow
	if err := r.db.SelectContext(ctx, &skills, skillQuery, actorID); err != nil {
		return nil, fmt.Errorf("store: load skills for %s: %w", actorID, err)
	}
	for _, sk := range skills {
		actor.Skills[sk.SkillID] = &world.SkillState{
			Level: sk.Level,
			Skill: &world.Skill{
				ID:              sk.SkillID,
				Name:            sk.Name,
				Kind:            world.SkillKind(sk.Kind),
				Damage:          sk.Damage,
				Range:           sk.Range,
				CooldownMs:      sk.CooldownMs,
				AreaRadius:      sk.AreaRadius,
				DurationMs:      sk.DurationMs,
				DamagePerSecond: sk.DamagePerSecond,
			},
		}
	}
	return actor, nil
}

// UpdateActor writes the snapshot fields back to the actor row.
func (r *Repository) UpdateActor(ctx context.Context, snap world.Snapshot) error {
	const query = `
		UPDATE actors
		   SET area_id = :area_id, x = :x, y = :y, level = :level,
		       hp = :hp, max_hp = :max_hp, alive = :alive
		 WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, snap)
	if err != nil {
		return fmt.Errorf("store: update actor %s: %w", snap.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: update actor %s: no row", snap.ID)
	}
	return nil
}

type areaMetaRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Width    int    `db:"tile_width"`
	Height   int    `db:"tile_height"`
	TileSize int    `db:"tile_size"`
	Grid     []byte `db:"grid"`
}

type teleportRow struct {
	ID           string `db:"id"`
	X            int    `db:"x"`
	Y            int    `db:"y"`
	Width        int    `db:"width"`
	Height       int    `db:"height"`
	DestAreaID   string `db:"dest_area_id"`
	DestAreaName string `db:"dest_area_name"`
	DestX        int    `db:"dest_x"`
	DestY        int    `db:"dest_y"`
}

// LoadArea reads one area row and its teleport table. The grid column holds
// the msgpack-encoded merged passability layer produced at ingestion time.
func (r *Repository) LoadArea(ctx context.Context, areaID string) (*world.Area, error) {
	return r.loadArea(ctx, `WHERE id = $1`, areaID)
}

// LoadAreaByName resolves an area by display name.
func (r *Repository) LoadAreaByName(ctx context.Context, name string) (*world.Area, error) {
	return r.loadArea(ctx, `WHERE name = $1`, name)
}

func (r *Repository) loadArea(ctx context.Context, where, arg string) (*world.Area, error) {
	query := `SELECT id, name, tile_width, tile_height, tile_size, grid FROM areas ` + where
	var row areaMetaRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: area %q: %w", arg, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("store: load area %q: %w", arg, err)
	}

	var passable []bool
	if err := msgpack.Unmarshal(row.Grid, &passable); err != nil {
		return nil, fmt.Errorf("store: decode grid for area %s: %w", row.ID, err)
	}

	const teleportQuery = `
		SELECT id, x, y, width, height, dest_area_id, dest_area_name, dest_x, dest_y
		  FROM teleports WHERE area_id = $1`
	var teleports []teleportRow
	if err := r.db.SelectContext(ctx, &teleports, teleportQuery, row.ID); err != nil {
		return nil, fmt.Errorf("store: load teleports for area %s: %w", row.ID, err)
	}

	area := &world.Area{
		ID:       row.ID,
		Name:     row.Name,
		Width:    row.Width,
		Height:   row.Height,
		TileSize: row.TileSize,
		Passable: passable,
	}
	for _, t := range teleports {
		area.Teleports = append(area.Teleports, world.Teleport{
			ID:           t.ID,
			X:            t.X,
			Y:            t.Y,
			Width:        t.Width,
			Height:       t.Height,
			DestAreaID:   t.DestAreaID,
			DestAreaName: t.DestAreaName,
			DestX:        t.DestX,
			DestY:        t.DestY,
		})
	}
	return area, nil
}

// hydrate builds a live actor from persisted fields, resetting the transient
// combat bookkeeping.
func hydrate(snap world.Snapshot) *world.Actor {
	return &world.Actor{
		ID:          snap.ID,
		UserID:      snap.UserID,
		Name:        snap.Name,
		AreaID:      snap.AreaID,
		FactionID:   snap.FactionID,
		ClassID:     snap.ClassID,
		X:           snap.X,
		Y:           snap.Y,
		Level:       snap.Level,
		HP:          snap.HP,
		MaxHP:       snap.MaxHP,
		Defense:     snap.Defense,
		BaseDamage:  snap.BaseDamage,
		AttackRange: snap.AttackRange,
		AttackSpeed: time.Duration(snap.AttackSpeedMs) * time.Millisecond,
		Alive:       snap.Alive,
		Target:      world.NoTarget(),
		Skills:      make(map[string]*world.SkillState),
	}
}
