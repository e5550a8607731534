package renderer

// dashedLine strokes a dashed rule across the paper at y
func (c *Canvas) dashedLine(y float64) {
	margin := 20.0
	x1 := margin
	x2 := float64(c.width) - margin

	c.ctx.SetLineWidth(2)

	dashLength := 10.0
	gapLength := 5.0
	for x := x1; x < x2; x += dashLength + gapLength {
		endX := x + dashLength
		if endX > x2 {
			endX = x2
		}
		c.ctx.DrawLine(x, y, endX, y)
		c.ctx.Stroke()
	}
}
