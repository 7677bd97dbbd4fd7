package nav

import (
	"context"
	"testing"
)

// fakeGrid marks tiles listed in blocked as impassable.
type fakeGrid struct {
	width   int
	height  int
	blocked map[Point]bool
}

func (g *fakeGrid) Dimensions() (int, int) { return g.width, g.height }

func (g *fakeGrid) Walkable(x, y int) bool { return !g.blocked[Point{X: x, Y: y}] }

func openGrid(w, h int, blocked ...Point) *fakeGrid {
	m := make(map[Point]bool, len(blocked))
	for _, p := range blocked {
		m[p] = true
	}
	return &fakeGrid{width: w, height: h, blocked: m}
}

func TestStepPathExcludesStart(t *testing.T) {
	svc := NewService()
	steps := svc.StepPath(context.Background(), "field", Point{0, 0}, Point{3, 0}, openGrid(5, 5))
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %v", len(steps), steps)
	}
	if steps[0] == (Point{0, 0}) {
		t.Fatalf("path must exclude the starting tile")
	}
	if steps[len(steps)-1] != (Point{3, 0}) {
		t.Fatalf("path must end at the target, got %v", steps)
	}
}

func TestStepPathRoutesAroundWall(t *testing.T) {
	svc := NewService()
	grid := openGrid(5, 5, Point{1, 0}, Point{1, 1}, Point{1, 2}, Point{1, 3})
	steps := svc.StepPath(context.Background(), "field", Point{0, 0}, Point{2, 0}, grid)
	if len(steps) == 0 {
		t.Fatalf("expected a detour path")
	}
	for _, s := range steps {
		if grid.blocked[s] {
			t.Fatalf("path crosses blocked tile %v", s)
		}
	}
	if len(steps) <= 2 {
		t.Fatalf("detour should be longer than the straight line, got %v", steps)
	}
}

func TestPathLengthSentinels(t *testing.T) {
	svc := NewService()
	grid := openGrid(3, 3, Point{1, 0}, Point{1, 1}, Point{1, 2})
	ctx := context.Background()

	if got := svc.PathLength(ctx, "field", Point{0, 0}, Point{0, 0}, grid); got != 0 {
		t.Fatalf("same tile should cost 0, got %d", got)
	}
	if got := svc.PathLength(ctx, "field", Point{0, 0}, Point{2, 0}, grid); got != Unreachable {
		t.Fatalf("walled-off target should be unreachable, got %d", got)
	}
	if got := svc.PathLength(ctx, "field", Point{0, 0}, Point{0, 2}, grid); got != 2 {
		t.Fatalf("expected length 2, got %d", got)
	}
}

func TestPlannerCacheIdentity(t *testing.T) {
	svc := NewService()
	grid := openGrid(4, 4)
	first := svc.GetOrCreate("field", grid)
	second := svc.GetOrCreate("field", grid)
	if first != second {
		t.Fatalf("expected cached planner instance to be reused")
	}

	svc.ClearAll()
	third := svc.GetOrCreate("field", grid)
	if third == first {
		t.Fatalf("ClearAll should drop cached planners")
	}
}

func TestStepPathToBlockedTileFails(t *testing.T) {
	svc := NewService()
	grid := openGrid(3, 3, Point{2, 2})
	steps := svc.StepPath(context.Background(), "field", Point{0, 0}, Point{2, 2}, grid)
	if len(steps) != 0 {
		t.Fatalf("expected no path onto a blocked tile, got %v", steps)
	}
}
