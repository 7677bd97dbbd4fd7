package nav

import (
	"container/heap"
	"context"

	"github.com/sasha-s/go-deadlock"
)

// Point is a tile coordinate.
type Point struct {
	X int
	Y int
}

// PassabilityGrid exposes the walkable tiles of one area. Grids are immutable
// for the lifetime of a running shard.
type PassabilityGrid interface {
	Dimensions() (width, height int)
	Walkable(x, y int) bool
}

// Unreachable is the sentinel distance for targets no path can reach.
const Unreachable = -1

var stepOffsets = [...]Point{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// Service caches one planner per area and serializes searches against it.
type Service struct {
	mu       deadlock.Mutex
	planners map[string]*planner
}

// NewService builds an empty planner cache.
func NewService() *Service {
	return &Service{planners: make(map[string]*planner)}
}

// GetOrCreate returns the cached planner for the area, building one from the
// grid on first use. Planners are keyed by area id only; the grid is assumed
// not to change for a given area.
func (s *Service) GetOrCreate(areaID string, g PassabilityGrid) *planner {
	if s == nil || g == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.planners[areaID]; ok {
		return p
	}
	p := newPlanner(g)
	s.planners[areaID] = p
	return p
}

// StepPath returns the ordered tile steps from one tile to another, excluding
// the starting tile. The result is empty when the tiles match or no path
// exists.
func (s *Service) StepPath(ctx context.Context, areaID string, from, to Point, g PassabilityGrid) []Point {
	p := s.GetOrCreate(areaID, g)
	if p == nil {
		return nil
	}
	return p.findPath(ctx, from, to)
}

// PathLength returns the number of steps between two tiles, or Unreachable
// when no path exists. A zero length means the actor is already at the target.
func (s *Service) PathLength(ctx context.Context, areaID string, from, to Point, g PassabilityGrid) int {
	if from == to {
		return 0
	}
	steps := s.StepPath(ctx, areaID, from, to, g)
	if len(steps) == 0 {
		return Unreachable
	}
	return len(steps)
}

// ClearAll drops every cached planner. Used when area data is reloaded.
func (s *Service) ClearAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planners = make(map[string]*planner)
}

// planner wraps one area's grid with a search lock; the open/closed sets are
// rebuilt per search so only the serialization matters.
type planner struct {
	mu     deadlock.Mutex
	grid   PassabilityGrid
	width  int
	height int
}

func newPlanner(g PassabilityGrid) *planner {
	w, h := g.Dimensions()
	return &planner{grid: g, width: w, height: h}
}

func (p *planner) inBounds(pt Point) bool {
	return pt.X >= 0 && pt.Y >= 0 && pt.X < p.width && pt.Y < p.height
}

func (p *planner) index(pt Point) int {
	return pt.Y*p.width + pt.X
}

// heuristic is Manhattan distance; admissible for 4-neighbour movement.
func heuristic(a, b Point) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

type pathNode struct {
	point  Point
	g      int
	f      int
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool { return pq[i].f < pq[j].f }

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// findPath runs A* between two tiles. The context is polled periodically so a
// cancelled caller stops burning CPU on a hopeless search.
func (p *planner) findPath(ctx context.Context, start, goal Point) []Point {
	if p == nil || start == goal {
		return nil
	}
	if !p.inBounds(start) || !p.inBounds(goal) {
		return nil
	}
	if !p.grid.Walkable(goal.X, goal.Y) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathNode{point: start, g: 0, f: heuristic(start, goal)})
	gScore := map[int]int{p.index(start): 0}
	closed := make(map[int]struct{})

	expanded := 0
	for open.Len() > 0 {
		expanded++
		if expanded%256 == 0 && ctx != nil && ctx.Err() != nil {
			return nil
		}

		current := heap.Pop(open).(*pathNode)
		currIdx := p.index(current.point)
		if _, seen := closed[currIdx]; seen {
			continue
		}
		closed[currIdx] = struct{}{}
		if current.point == goal {
			return reconstructSteps(current)
		}

		for _, delta := range stepOffsets {
			next := Point{X: current.point.X + delta.X, Y: current.point.Y + delta.Y}
			if !p.inBounds(next) {
				continue
			}
			idx := p.index(next)
			if !p.grid.Walkable(next.X, next.Y) {
				continue
			}
			if _, seen := closed[idx]; seen {
				continue
			}
			tentativeG := current.g + 1
			if prev, ok := gScore[idx]; ok && tentativeG >= prev {
				continue
			}
			gScore[idx] = tentativeG
			heap.Push(open, &pathNode{
				point:  next,
				g:      tentativeG,
				f:      tentativeG + heuristic(next, goal),
				parent: current,
			})
		}
	}
	return nil
}

// reconstructSteps walks parent links back to the start and reverses the
// result, dropping the starting tile.
func reconstructSteps(end *pathNode) []Point {
	if end == nil {
		return nil
	}
	path := make([]Point, 0)
	for node := end; node != nil; node = node.parent {
		path = append(path, node.point)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	if len(path) <= 1 {
		return nil
	}
	return path[1:]
}
