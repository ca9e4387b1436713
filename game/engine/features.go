package engine

// FeatureCount is the length of the vector returned by FeatureVector.
const FeatureCount = 11

// FeatureVector projects the board into a fixed-shape vector:
//
//	[0..2]  danger straight, right, left (relative to the heading)
//	[3..6]  heading one-hot: up, right, down, left
//	[7..10] food is left, right, above, below the head
func (e *Engine) FeatureVector() []float64 {
	head := e.snake[0]
	h := e.heading

	return []float64{
		boolFeature(e.dangerAt(head.next(h))),
		boolFeature(e.dangerAt(head.next(h.RotateRight()))),
		boolFeature(e.dangerAt(head.next(h.RotateLeft()))),

		boolFeature(h == Up),
		boolFeature(h == Right),
		boolFeature(h == Down),
		boolFeature(h == Left),

		boolFeature(e.food.X < head.X),
		boolFeature(e.food.X > head.X),
		boolFeature(e.food.Y < head.Y),
		boolFeature(e.food.Y > head.Y),
	}
}

// dangerAt reports whether moving the head onto c would end the game.
func (e *Engine) dangerAt(c Cell) bool {
	if !inBounds(c, e.config.Width, e.config.Height) {
		return true
	}
	return containsCell(e.snake[:len(e.snake)-1], c)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
