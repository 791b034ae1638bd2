package world

import (
	"math"
	"sync"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
)

// AOIGrid implements a cell-based Area of Interest index over global X/Y.
// Cell size equals the visibility range so a 3x3 neighbourhood of cells
// fully covers it. Landblocks tick in parallel, so the grid is locked.

type cellKey struct {
	cx int32
	cy int32
}

type AOIGrid struct {
	cellSize float64

	mu    sync.RWMutex
	cells map[cellKey]map[guid.Guid]struct{}
}

func NewAOIGrid(cellSize float64) *AOIGrid {
	return &AOIGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[guid.Guid]struct{}),
	}
}

func (g *AOIGrid) key(p objmaint.Position) cellKey {
	x, y := globalXY(p)
	return cellKey{cx: int32(math.Floor(x / g.cellSize)), cy: int32(math.Floor(y / g.cellSize))}
}

// Add places an object into the grid.
func (g *AOIGrid) Add(id guid.Guid, p objmaint.Position) {
	k := g.key(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(id, k)
}

func (g *AOIGrid) addLocked(id guid.Guid, k cellKey) {
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[guid.Guid]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
}

// Remove takes an object out of the grid.
func (g *AOIGrid) Remove(id guid.Guid, p objmaint.Position) {
	k := g.key(p)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(id, k)
}

func (g *AOIGrid) removeLocked(id guid.Guid, k cellKey) {
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates an object's cell when its position changes.
func (g *AOIGrid) Move(id guid.Guid, from, to objmaint.Position) {
	oldK := g.key(from)
	newK := g.key(to)
	if oldK == newK {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(id, oldK)
	g.addLocked(id, newK)
}

// GetNearbyInto appends the guids in the 3x3 neighbourhood around p to buf.
// Caller does fine-grained distance filtering.
func (g *AOIGrid) GetNearbyInto(p objmaint.Position, buf []guid.Guid) []guid.Guid {
	c := g.key(p)
	buf = buf[:0]
	g.mu.RLock()
	defer g.mu.RUnlock()
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for id := range g.cells[cellKey{cx: c.cx + dx, cy: c.cy + dy}] {
				buf = append(buf, id)
			}
		}
	}
	return buf
}
