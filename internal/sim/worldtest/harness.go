package worldtest

import (
	"testing"

	"chunkwake.ai/internal/sim/deferred"
	"chunkwake.ai/internal/sim/world"
)

// Harness wires a world, a command registry, and a deferred system over
// an in-memory location store, and drives them via StepOnce so tests
// stay deterministic and single-threaded.
//
// The harness does NOT mark the store ready: tests decide when the
// pre-ready window closes by calling Ready().
type Harness struct {
	T     *testing.T
	W     *world.World
	Reg   *deferred.Registry
	Sys   *deferred.System
	Store *deferred.MemoryStore

	DefaultAgentID string
}

func NewHarness(t *testing.T, cfg world.WorldConfig) *Harness {
	t.Helper()

	w := world.New(cfg)
	reg := deferred.NewRegistry()
	sys := deferred.NewSystem(deferred.Config{}, reg, w)
	w.AttachDeferred(sys)
	world.RegisterBuiltins(reg, w)

	return &Harness{
		T:     t,
		W:     w,
		Reg:   reg,
		Sys:   sys,
		Store: deferred.NewMemoryStore(),
	}
}

// Ready fires the host's subsystem-ready notification.
func (h *Harness) Ready() {
	h.T.Helper()
	h.Sys.StoreReady(h.Store)
}

func (h *Harness) Join(name string) string {
	h.T.Helper()
	resp := make(chan string, 1)
	h.W.StepOnce([]world.JoinRequest{{Name: name, Resp: resp}}, nil, nil)
	id := <-resp
	if id == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	if h.DefaultAgentID == "" {
		h.DefaultAgentID = id
	}
	return id
}

func (h *Harness) Step(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.W.StepOnce(nil, nil, nil)
	}
}

func (h *Harness) AddCommand(pos world.Vec3i, cmd deferred.Command) error {
	h.T.Helper()
	return h.W.AddCommand(pos, cmd)
}

func (h *Harness) MustAddCommand(pos world.Vec3i, cmd deferred.Command) {
	h.T.Helper()
	if err := h.AddCommand(pos, cmd); err != nil {
		h.T.Fatalf("AddCommand %q at %v: %v", cmd.Name, pos, err)
	}
}

func (h *Harness) SetAgentPos(pos world.Vec3i) {
	h.T.Helper()
	if !h.W.DebugSetAgentPos(h.DefaultAgentID, pos) {
		h.T.Fatalf("DebugSetAgentPos returned false")
	}
}
