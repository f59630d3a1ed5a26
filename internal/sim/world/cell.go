package world

import "chunkwake.ai/internal/sim/deferred"

// Cell is the live handle for one resolvable world cell. Handlers
// receive it through the deferred layer and assert it back to *Cell.
type Cell struct {
	w   *World
	Pos Vec3i
}

func (c *Cell) Block() uint16 {
	return c.w.chunks.GetBlock(c.Pos)
}

func (c *Cell) SetBlock(b uint16) {
	c.w.chunks.SetBlock(c.Pos, b)
}

// ResolveCell implements deferred.CellResolver. A cell resolves while
// its position is inside the world boundary on the ground plane;
// shrinking the boundary after a command was queued makes resolution
// fail, which is a valid outcome rather than an error.
func (w *World) ResolveCell(p deferred.Vec3i) (deferred.Cell, bool) {
	pos := Vec3i{X: p.X, Y: p.Y, Z: p.Z}
	if !w.chunks.inBounds(pos) {
		return nil, false
	}
	return &Cell{w: w, Pos: pos}, true
}
