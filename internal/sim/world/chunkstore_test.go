package world

import (
	"testing"

	"chunkwake.ai/internal/sim/deferred"
)

func TestFloorDivMod(t *testing.T) {
	cases := []struct {
		a, div, mod int
	}{
		{0, 0, 0},
		{15, 0, 15},
		{16, 1, 0},
		{-1, -1, 15},
		{-16, -1, 0},
		{-17, -2, 15},
	}
	for _, tc := range cases {
		if got := floorDiv(tc.a, 16); got != tc.div {
			t.Fatalf("floorDiv(%d, 16) = %d, want %d", tc.a, got, tc.div)
		}
		if got := mod(tc.a, 16); got != tc.mod {
			t.Fatalf("mod(%d, 16) = %d, want %d", tc.a, got, tc.mod)
		}
	}
}

func TestChunkStore_DeterministicGeneration(t *testing.T) {
	a := NewChunkStore(WorldGen{Seed: 42})
	b := NewChunkStore(WorldGen{Seed: 42})
	for z := -20; z <= 20; z += 5 {
		for x := -20; x <= 20; x += 5 {
			pos := Vec3i{X: x, Y: 0, Z: z}
			if a.GetBlock(pos) != b.GetBlock(pos) {
				t.Fatalf("same seed generated different block at %v", pos)
			}
		}
	}

	c := NewChunkStore(WorldGen{Seed: 43})
	same := true
	for z := 0; z < 16 && same; z++ {
		for x := 0; x < 16; x++ {
			pos := Vec3i{X: x, Y: 0, Z: z}
			if a.GetBlock(pos) != c.GetBlock(pos) {
				same = false
				break
			}
		}
	}
	if same {
		t.Fatalf("different seeds generated identical chunk (0,0)")
	}
}

func TestChunkStore_Bounds(t *testing.T) {
	s := NewChunkStore(WorldGen{Seed: 1, BoundaryR: 32})

	if !s.inBounds(Vec3i{X: 32, Y: 0, Z: -32}) {
		t.Fatalf("boundary edge should be in bounds")
	}
	if s.inBounds(Vec3i{X: 33, Y: 0, Z: 0}) {
		t.Fatalf("outside boundary should be out of bounds")
	}
	if s.inBounds(Vec3i{X: 0, Y: 1, Z: 0}) {
		t.Fatalf("off-plane cell should be out of bounds")
	}

	// Writes outside bounds are dropped; reads return air.
	s.SetBlock(Vec3i{X: 40, Y: 0, Z: 0}, BlockStone)
	if got := s.GetBlock(Vec3i{X: 40, Y: 0, Z: 0}); got != BlockAir {
		t.Fatalf("out-of-bounds read = %d, want air", got)
	}
}

func TestResolveCell_BoundaryShrink(t *testing.T) {
	w := New(WorldConfig{ID: "w", TickRateHz: 5, Seed: 1, BoundaryR: 64})

	pos := deferred.Vec3i{X: 50, Y: 0, Z: 0}
	if _, ok := w.ResolveCell(pos); !ok {
		t.Fatalf("in-bounds cell did not resolve")
	}
	w.DebugSetBoundary(16)
	if _, ok := w.ResolveCell(pos); ok {
		t.Fatalf("cell resolved after boundary shrink")
	}
}
