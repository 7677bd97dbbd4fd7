package grid

import (
	"github.com/sasha-s/go-deadlock"
)

// DefaultCellSize matches the world tile size so a radius of N tiles never
// scans more than (N+1)^2 cells.
const DefaultCellSize = 32

// CellKey addresses one bucket of the per-area proximity grid.
type CellKey struct {
	AreaID string
	X      int
	Y      int
}

// Index buckets actor ids into fixed-size grid cells per area. All methods
// are safe for concurrent use; operations on absent actors are no-ops.
type Index struct {
	mu       deadlock.RWMutex
	cellSize int
	cells    map[CellKey]map[string]struct{}
	entries  map[string]CellKey
}

// NewIndex builds an empty index with the given cell size in pixels.
func NewIndex(cellSize int) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize: cellSize,
		cells:    make(map[CellKey]map[string]struct{}),
		entries:  make(map[string]CellKey),
	}
}

// Add places an actor into the cell covering its position. Adding an actor
// that is already tracked moves it instead.
func (ix *Index) Add(actorID, areaID string, x, y int) {
	if ix == nil || actorID == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(actorID, ix.keyFor(areaID, x, y))
}

// Remove drops an actor from the index. Removing an untracked actor is a no-op.
func (ix *Index) Remove(actorID string) {
	if ix == nil || actorID == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	key, ok := ix.entries[actorID]
	if !ok {
		return
	}
	ix.evictLocked(actorID, key)
	delete(ix.entries, actorID)
}

// Update moves an actor from its previous cell to the one covering the new
// position. It is a no-op when the cell key is unchanged, so sub-cell
// movement causes no churn. An untracked actor is simply added.
func (ix *Index) Update(actorID, oldAreaID string, oldX, oldY int, areaID string, x, y int) {
	if ix == nil || actorID == "" {
		return
	}
	oldKey := ix.keyFor(oldAreaID, oldX, oldY)
	newKey := ix.keyFor(areaID, x, y)
	if oldKey == newKey {
		ix.mu.RLock()
		_, tracked := ix.entries[actorID]
		ix.mu.RUnlock()
		if tracked {
			return
		}
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if prev, ok := ix.entries[actorID]; ok {
		if prev == newKey {
			return
		}
		ix.evictLocked(actorID, prev)
	}
	ix.insertLocked(actorID, newKey)
}

// QueryRadius returns the ids of every actor bucketed within the square of
// cells covering the radius around (x, y), plus the cell keys it touched.
// Callers needing a circular cut must filter by distance themselves.
func (ix *Index) QueryRadius(areaID string, x, y, radius int) ([]string, []CellKey) {
	if ix == nil || radius < 0 {
		return nil, nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	minX := floorDiv(x-radius, ix.cellSize)
	maxX := floorDiv(x+radius, ix.cellSize)
	minY := floorDiv(y-radius, ix.cellSize)
	maxY := floorDiv(y+radius, ix.cellSize)

	ids := make([]string, 0, 8)
	touched := make([]CellKey, 0, (maxX-minX+1)*(maxY-minY+1))
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			key := CellKey{AreaID: areaID, X: cx, Y: cy}
			touched = append(touched, key)
			for id := range ix.cells[key] {
				ids = append(ids, id)
			}
		}
	}
	return ids, touched
}

// Cell reports the cell an actor currently occupies, if any.
func (ix *Index) Cell(actorID string) (CellKey, bool) {
	if ix == nil {
		return CellKey{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	key, ok := ix.entries[actorID]
	return key, ok
}

func (ix *Index) keyFor(areaID string, x, y int) CellKey {
	return CellKey{AreaID: areaID, X: floorDiv(x, ix.cellSize), Y: floorDiv(y, ix.cellSize)}
}

func (ix *Index) insertLocked(actorID string, key CellKey) {
	bucket := ix.cells[key]
	if bucket == nil {
		bucket = make(map[string]struct{})
		ix.cells[key] = bucket
	}
	bucket[actorID] = struct{}{}
	ix.entries[actorID] = key
}

func (ix *Index) evictLocked(actorID string, key CellKey) {
	bucket := ix.cells[key]
	if bucket == nil {
		return
	}
	delete(bucket, actorID)
	if len(bucket) == 0 {
		delete(ix.cells, key)
	}
}

func floorDiv(value, size int) int {
	q := value / size
	if value%size != 0 && (value < 0) != (size < 0) {
		q--
	}
	return q
}
