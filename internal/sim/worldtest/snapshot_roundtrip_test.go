package worldtest

import (
	"path/filepath"
	"testing"

	"chunkwake.ai/internal/persistence/snapshot"
	"chunkwake.ai/internal/sim/deferred"
	"chunkwake.ai/internal/sim/world"
)

func TestSnapshot_PendingSetsSurviveRestart(t *testing.T) {
	h := NewHarness(t, baseConfig())
	h.Ready()

	pos := world.Vec3i{X: 33, Y: 0, Z: 33}
	h.MustAddCommand(pos, deferred.Command{
		Name:   "set_block",
		Params: map[string]any{"block": "SAND"},
	})
	h.MustAddCommand(pos, deferred.Command{
		Name:           "announce",
		Params:         map[string]any{"message": "arrived"},
		RunWithoutCell: true,
	})

	h.Join("settler")
	h.Step(1)

	snap := h.W.ExportSnapshot(h.W.CurrentTick())
	path := filepath.Join(t.TempDir(), "roundtrip.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	// "Restart": fresh world, fresh store, same config.
	h2 := NewHarness(t, baseConfig())
	if err := h2.W.ImportSnapshot(loaded, h2.Store); err != nil {
		t.Fatalf("import snapshot: %v", err)
	}
	h2.Ready()

	e := h2.Store.Get(deferred.Vec3i{X: 33, Y: 0, Z: 33})
	if e == nil {
		t.Fatalf("pending entry lost across restart")
	}
	if len(e.Commands) != 2 {
		t.Fatalf("pending set size = %d, want 2", len(e.Commands))
	}
	if e.Commands[0].Name != "set_block" || e.Commands[1].Name != "announce" {
		t.Fatalf("pending order lost: %v, %v", e.Commands[0].Name, e.Commands[1].Name)
	}
	if !e.Commands[1].RunWithoutCell {
		t.Fatalf("run-without-cell flag lost across restart")
	}
	if got := e.Commands[0].Params["block"]; got != "SAND" {
		t.Fatalf("params lost across restart: %v", got)
	}

	// The restored commands still dispatch.
	h2.Join("settler")
	h2.SetAgentPos(world.Vec3i{X: 33, Y: 0, Z: 33})
	h2.Step(1)
	if got := h2.W.BlockAt(world.Vec3i{X: 33, Y: 0, Z: 33}); got != world.BlockSand {
		t.Fatalf("restored set_block did not run: block = %d", got)
	}
	if notices := h2.W.Notices(); len(notices) != 1 || notices[0] != "arrived" {
		t.Fatalf("restored announce did not run: %v", notices)
	}
}

func TestSnapshot_WorldStateRoundTrip(t *testing.T) {
	h := NewHarness(t, baseConfig())
	h.Ready()
	h.Join("one")
	h.Step(3)

	edit := world.Vec3i{X: 3, Y: 0, Z: 3}
	if err := h.W.DebugSetBlock(edit, "LOG"); err != nil {
		t.Fatalf("DebugSetBlock: %v", err)
	}

	snap := h.W.ExportSnapshot(h.W.CurrentTick())

	h2 := NewHarness(t, baseConfig())
	if err := h2.W.ImportSnapshot(snap, nil); err != nil {
		t.Fatalf("import snapshot: %v", err)
	}
	if got := h2.W.BlockAt(edit); got != world.BlockLog {
		t.Fatalf("edited block lost: %d", got)
	}
	if h2.W.CurrentTick() != snap.Header.Tick+1 {
		t.Fatalf("tick not restored: %d", h2.W.CurrentTick())
	}
}
