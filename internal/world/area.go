package world

import (
	"context"
	"fmt"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// Area is the merged, read-only description of one world map: a passability
// grid plus the teleport table. Areas never change while a shard is running.
type Area struct {
	ID        string     `msgpack:"id"`
	Name      string     `msgpack:"n"`
	Width     int        `msgpack:"w"` // tiles
	Height    int        `msgpack:"h"` // tiles
	TileSize  int        `msgpack:"ts"`
	Passable  []bool     `msgpack:"p"` // row-major, true = walkable
	Teleports []Teleport `msgpack:"tp"`
}

// Dimensions implements nav.PassabilityGrid.
func (a *Area) Dimensions() (int, int) { return a.Width, a.Height }

// Walkable implements nav.PassabilityGrid. Out-of-bounds tiles are blocked.
func (a *Area) Walkable(x, y int) bool {
	if a == nil || x < 0 || y < 0 || x >= a.Width || y >= a.Height {
		return false
	}
	idx := y*a.Width + x
	if idx >= len(a.Passable) {
		return false
	}
	return a.Passable[idx]
}

// TeleportByID finds a teleport in this area's table.
func (a *Area) TeleportByID(id string) (Teleport, bool) {
	if a == nil {
		return Teleport{}, false
	}
	for _, t := range a.Teleports {
		if t.ID == id {
			return t, true
		}
	}
	return Teleport{}, false
}

// Teleport is a trigger rectangle that moves an actor to another area.
type Teleport struct {
	ID           string `msgpack:"id"`
	X            int    `msgpack:"x"` // pixels, top-left
	Y            int    `msgpack:"y"`
	Width        int    `msgpack:"w"`
	Height       int    `msgpack:"h"`
	DestAreaID   string `msgpack:"da"`
	DestAreaName string `msgpack:"dn"`
	DestX        int    `msgpack:"dx"`
	DestY        int    `msgpack:"dy"`
}

// Contains reports whether the point falls inside the trigger rectangle.
// The rectangle is a plain axis-aligned box on both axes.
func (t Teleport) Contains(x, y int) bool {
	return x >= t.X && x <= t.X+t.Width && y >= t.Y && y <= t.Y+t.Height
}

// AreaSource loads area records from durable storage.
type AreaSource interface {
	LoadArea(ctx context.Context, areaID string) (*Area, error)
	LoadAreaByName(ctx context.Context, name string) (*Area, error)
}

// AreaCache reads and writes merged area grids in the shared cache. A miss is
// not an error; absence falls through to the source.
type AreaCache interface {
	Area(ctx context.Context, areaID string) (*Area, bool)
	SetArea(ctx context.Context, area *Area) error
}

// Catalog memoizes areas in-process with a cache-then-source fallback.
type Catalog struct {
	mu     deadlock.RWMutex
	byID   map[string]*Area
	byName map[string]*Area
	source AreaSource
	cache  AreaCache
	log    *zap.Logger
}

// NewCatalog builds an empty catalog over the given collaborators.
func NewCatalog(source AreaSource, cache AreaCache, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		byID:   make(map[string]*Area),
		byName: make(map[string]*Area),
		source: source,
		cache:  cache,
		log:    log,
	}
}

// Area resolves an area by id: in-process map, then shared cache, then the
// durable source. Loaded areas are written back to both layers.
func (c *Catalog) Area(ctx context.Context, areaID string) (*Area, error) {
	c.mu.RLock()
	if area, ok := c.byID[areaID]; ok {
		c.mu.RUnlock()
		return area, nil
	}
	c.mu.RUnlock()

	if c.cache != nil {
		if area, ok := c.cache.Area(ctx, areaID); ok {
			c.remember(area)
			return area, nil
		}
	}

	area, err := c.source.LoadArea(ctx, areaID)
	if err != nil {
		return nil, fmt.Errorf("world: load area %s: %w", areaID, err)
	}
	c.remember(area)
	if c.cache != nil {
		if err := c.cache.SetArea(ctx, area); err != nil {
			c.log.Warn("failed to cache area grid", zap.String("area", areaID), zap.Error(err))
		}
	}
	return area, nil
}

// AreaByName resolves an area by display name, falling back to the source.
func (c *Catalog) AreaByName(ctx context.Context, name string) (*Area, error) {
	c.mu.RLock()
	if area, ok := c.byName[name]; ok {
		c.mu.RUnlock()
		return area, nil
	}
	c.mu.RUnlock()

	area, err := c.source.LoadAreaByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("world: load area named %q: %w", name, err)
	}
	c.remember(area)
	return area, nil
}

func (c *Catalog) remember(area *Area) {
	if area == nil {
		return
	}
	c.mu.Lock()
	c.byID[area.ID] = area
	if area.Name != "" {
		c.byName[area.Name] = area
	}
	c.mu.Unlock()
}
