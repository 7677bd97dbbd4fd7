package sim

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riftvale/server/internal/grid"
	"riftvale/server/internal/nav"
	"riftvale/server/internal/net/ws"
	"riftvale/server/internal/world"
)

// stubSource serves fixed areas in place of durable storage.
type stubSource struct {
	areas map[string]*world.Area
}

func (s *stubSource) LoadArea(_ context.Context, areaID string) (*world.Area, error) {
	area, ok := s.areas[areaID]
	if !ok {
		return nil, fmt.Errorf("no such area %q", areaID)
	}
	return area, nil
}

func (s *stubSource) LoadAreaByName(_ context.Context, name string) (*world.Area, error) {
	for _, area := range s.areas {
		if area.Name == name {
			return area, nil
		}
	}
	return nil, fmt.Errorf("no area named %q", name)
}

// testArea builds a fully walkable square area with optional blocked tiles.
func testArea(id string, size int, blocked ...nav.Point) *world.Area {
	passable := make([]bool, size*size)
	for i := range passable {
		passable[i] = true
	}
	for _, p := range blocked {
		passable[p.Y*size+p.X] = false
	}
	return &world.Area{
		ID:       id,
		Name:     id,
		Width:    size,
		Height:   size,
		TileSize: world.TileSize,
		Passable: passable,
	}
}

type sentEvent struct {
	Area    string
	Payload any
}

// recordBroadcaster captures everything the subsystems emit.
type recordBroadcaster struct {
	mu     sync.Mutex
	area   []sentEvent
	direct map[string][]any
}

func newRecordBroadcaster() *recordBroadcaster {
	return &recordBroadcaster{direct: make(map[string][]any)}
}

func (r *recordBroadcaster) BroadcastArea(areaID string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.area = append(r.area, sentEvent{Area: areaID, Payload: payload})
}

func (r *recordBroadcaster) SendActor(actorID string, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.direct[actorID] = append(r.direct[actorID], payload)
	return true
}

func (r *recordBroadcaster) areaEvents(areaID string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, 0, len(r.area))
	for _, e := range r.area {
		if e.Area == areaID {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (r *recordBroadcaster) directEvents(actorID string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.direct[actorID]...)
}

type roomMove struct {
	ActorID string
	From    string
	To      string
}

// fakeRooms records session room moves.
type fakeRooms struct {
	mu    sync.Mutex
	moves []roomMove
}

func (f *fakeRooms) MoveActorRoom(actorID, fromAreaID, toAreaID string, x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, roomMove{ActorID: actorID, From: fromAreaID, To: toAreaID})
}

// fakeTracker records session position refreshes.
type fakeTracker struct {
	mu  sync.Mutex
	pos map[string][2]int
}

func (f *fakeTracker) UpdateActorPosition(actorID string, x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos[actorID] = [2]int{x, y}
}

func (f *fakeTracker) position(actorID string) (int, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pos[actorID]
	return p[0], p[1], ok
}

type harness struct {
	store        *world.Store
	index        *grid.Index
	planner      *nav.Service
	areas        *world.Catalog
	bc           *recordBroadcaster
	rooms        *fakeRooms
	tracker      *fakeTracker
	movement     *Movement
	combat       *Combat
	interactions *Interactions
}

func newHarness(t *testing.T, areas ...*world.Area) *harness {
	t.Helper()
	source := &stubSource{areas: make(map[string]*world.Area)}
	for _, area := range areas {
		source.areas[area.ID] = area
	}

	h := &harness{
		store:   world.NewStore(nil, nil, nil),
		index:   grid.NewIndex(grid.DefaultCellSize),
		planner: nav.NewService(),
		areas:   world.NewCatalog(source, nil, nil),
		bc:      newRecordBroadcaster(),
		rooms:   &fakeRooms{},
		tracker: &fakeTracker{pos: make(map[string][2]int)},
	}
	h.movement = NewMovement(h.store, h.index, h.planner, h.areas, h.bc, nil)
	h.combat = NewCombat(h.store, h.index, h.planner, h.areas, h.movement, h.bc, nil)
	h.interactions = NewInteractions(h.store, h.index, h.areas, h.movement, h.combat, h.bc, h.rooms, nil)
	h.movement.BindInteractions(h.interactions)
	h.movement.BindTracker(h.tracker)
	return h
}

func (h *harness) join(t *testing.T, a *world.Actor) {
	t.Helper()
	require.NoError(t, h.store.Join(context.Background(), a, a.AreaID))
	h.index.Add(a.ID, a.AreaID, a.X, a.Y)
}

func newActor(id, userID, factionID, areaID string, x, y int) *world.Actor {
	return &world.Actor{
		ID:          id,
		UserID:      userID,
		Name:        "name-" + id,
		AreaID:      areaID,
		FactionID:   factionID,
		ClassID:     "warrior",
		X:           x,
		Y:           y,
		Level:       1,
		HP:          20,
		MaxHP:       20,
		Defense:     2,
		BaseDamage:  10,
		AttackRange: 1,
		AttackSpeed: 600 * time.Millisecond,
		Alive:       true,
		Target:      world.NoTarget(),
		Skills:      make(map[string]*world.SkillState),
	}
}

func session(userID, actorID, areaID string) *ws.Session {
	return &ws.Session{ID: "sess-" + actorID, UserID: userID, ActorID: actorID, AreaID: areaID}
}

func giveSkill(a *world.Actor, skill *world.Skill) {
	a.Skills[skill.ID] = &world.SkillState{Skill: skill, Level: 1}
}
