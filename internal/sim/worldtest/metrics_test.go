package worldtest

import (
	"testing"

	"chunkwake.ai/internal/sim/deferred"
	"chunkwake.ai/internal/sim/world"
)

// countingStore counts full enumerations, which are a table scan on the
// durable store.
type countingStore struct {
	*deferred.MemoryStore
	allCalls int
}

func (s *countingStore) All() []*deferred.Entry {
	s.allCalls++
	return s.MemoryStore.All()
}

func TestMetrics_PendingRowsNotEnumeratedEveryTick(t *testing.T) {
	w := world.New(baseConfig())
	reg := deferred.NewRegistry()
	sys := deferred.NewSystem(deferred.Config{}, reg, w)
	w.AttachDeferred(sys)
	world.RegisterBuiltins(reg, w)

	store := &countingStore{MemoryStore: deferred.NewMemoryStore()}
	sys.StoreReady(store)

	const ticks = 20
	for i := 0; i < ticks; i++ {
		w.StepOnce(nil, nil, nil)
	}
	if store.allCalls >= ticks {
		t.Fatalf("pending rows enumerated %d times in %d ticks", store.allCalls, ticks)
	}
	if store.allCalls == 0 {
		t.Fatalf("pending rows never published")
	}
	if w.Metrics().Tick != ticks-1 {
		t.Fatalf("metrics tick = %d, want %d", w.Metrics().Tick, ticks-1)
	}
}
