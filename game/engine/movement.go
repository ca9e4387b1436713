package engine

// Delta returns the unit step for the direction. Y grows downwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// Opposite returns the 180° reversal of d.
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// RotateLeft returns d turned 90° counter-clockwise.
func (d Direction) RotateLeft() Direction {
	return (d + 3) % 4
}

// RotateRight returns d turned 90° clockwise.
func (d Direction) RotateRight() Direction {
	return (d + 1) % 4
}

// Rotate applies a relative turn to d.
func (d Direction) Rotate(t Turn) Direction {
	switch t {
	case TurnLeft:
		return d.RotateLeft()
	case TurnRight:
		return d.RotateRight()
	}
	return d
}

// next returns the cell one step from c in direction d.
func (c Cell) next(d Direction) Cell {
	dx, dy := d.Delta()
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

// inBounds reports whether c lies on a width x height board.
func inBounds(c Cell, width, height int) bool {
	return c.X >= 0 && c.X < width && c.Y >= 0 && c.Y < height
}

// containsCell reports whether cells holds c.
func containsCell(cells []Cell, c Cell) bool {
	for _, cell := range cells {
		if cell == c {
			return true
		}
	}
	return false
}
