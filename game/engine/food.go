package engine

import (
	"sync"

	"golang.org/x/exp/rand"
)

// FoodPlacer chooses where the next food item goes. occupied reports whether
// a cell is covered by the snake. ok is false when no free cell exists.
type FoodPlacer interface {
	Place(width, height int, occupied func(Cell) bool) (cell Cell, ok bool)
}

// RandomPlacer picks uniformly among the free cells.
type RandomPlacer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPlacer creates a placer with its own seeded source.
func NewRandomPlacer(seed uint64) *RandomPlacer {
	return &RandomPlacer{rnd: rand.New(rand.NewSource(seed))}
}

// Place implements FoodPlacer.
func (p *RandomPlacer) Place(width, height int, occupied func(Cell) bool) (Cell, bool) {
	free := freeCells(width, height, occupied)
	if len(free) == 0 {
		return Cell{}, false
	}

	p.mu.Lock()
	idx := p.rnd.Intn(len(free))
	p.mu.Unlock()

	return free[idx], true
}

// SequencePlacer hands out a fixed list of cells in order, skipping any that
// are occupied or off the board. Once the list runs out it falls back to the
// first free cell in row-major order, so placement stays reproducible.
type SequencePlacer struct {
	cells []Cell
	next  int
}

// NewSequencePlacer creates a placer that replays cells.
func NewSequencePlacer(cells ...Cell) *SequencePlacer {
	return &SequencePlacer{cells: cells}
}

// Place implements FoodPlacer.
func (p *SequencePlacer) Place(width, height int, occupied func(Cell) bool) (Cell, bool) {
	for p.next < len(p.cells) {
		c := p.cells[p.next]
		p.next++
		if inBounds(c, width, height) && !occupied(c) {
			return c, true
		}
	}

	free := freeCells(width, height, occupied)
	if len(free) == 0 {
		return Cell{}, false
	}
	return free[0], true
}

func freeCells(width, height int, occupied func(Cell) bool) []Cell {
	free := make([]Cell, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := Cell{X: x, Y: y}
			if !occupied(c) {
				free = append(free, c)
			}
		}
	}
	return free
}
