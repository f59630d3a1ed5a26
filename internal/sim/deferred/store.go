package deferred

import "sort"

// Vec3i is duplicated here to avoid import cycles (deferred is used by world).
type Vec3i struct{ X, Y, Z int }

// ChunkKey identifies a 16x16 column of cells on the x/z plane.
type ChunkKey struct {
	CX int
	CZ int
}

// ChunkOf maps a cell position to its chunk.
func ChunkOf(pos Vec3i) ChunkKey {
	return ChunkKey{CX: floorDiv(pos.X, 16), CZ: floorDiv(pos.Z, 16)}
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// Entry is one location's pending command set. Commands stays in
// insertion order; an Entry never persists with an empty set.
type Entry struct {
	Pos      Vec3i     `json:"pos"`
	Commands []Command `json:"commands"`
}

// LocationStore is the host collaborator that persists pending command
// sets keyed by cell position. Implementations are free to be in-memory
// (tests, ephemeral worlds) or durable (internal/persistence/locdb).
type LocationStore interface {
	// Get returns the entry at pos, or nil when absent.
	Get(pos Vec3i) *Entry
	// Create returns a fresh empty entry bound to pos.
	Create(pos Vec3i) *Entry
	// Update persists the entry's current command set.
	Update(e *Entry) error
	// Delete removes the entry permanently.
	Delete(e *Entry) error
	// EntriesInChunk enumerates every entry whose position falls inside
	// the chunk, in a deterministic order.
	EntriesInChunk(cx, cz int) []*Entry
	// BatchComplete signals that a chunk-load batch has been fully
	// processed, releasing any batch-scoped resources.
	BatchComplete(entries []*Entry)
}

// Enumerator is an optional store capability used by snapshot export and
// the debug inspector.
type Enumerator interface {
	All() []*Entry
}

// CellResolver resolves a cell position to the host's live handle.
// Resolution failure is a valid outcome, not an error.
type CellResolver interface {
	ResolveCell(pos Vec3i) (Cell, bool)
}

// RestoreEntries seeds a store from previously persisted entries,
// preserving command order. Entries with empty command sets are skipped:
// an empty pending set never persists.
func RestoreEntries(store LocationStore, entries []Entry) error {
	for _, src := range entries {
		if len(src.Commands) == 0 {
			continue
		}
		e := store.Get(src.Pos)
		if e == nil {
			e = store.Create(src.Pos)
		}
		e.Commands = append(e.Commands, src.Commands...)
		if err := store.Update(e); err != nil {
			return err
		}
	}
	return nil
}

// MemoryStore is the in-memory LocationStore. Accessed only from the
// host's simulation goroutine, like everything else in this package.
type MemoryStore struct {
	entries map[Vec3i]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[Vec3i]*Entry{}}
}

func (s *MemoryStore) Get(pos Vec3i) *Entry {
	return s.entries[pos]
}

func (s *MemoryStore) Create(pos Vec3i) *Entry {
	e := &Entry{Pos: pos}
	s.entries[pos] = e
	return e
}

func (s *MemoryStore) Update(e *Entry) error {
	s.entries[e.Pos] = e
	return nil
}

func (s *MemoryStore) Delete(e *Entry) error {
	delete(s.entries, e.Pos)
	return nil
}

func (s *MemoryStore) EntriesInChunk(cx, cz int) []*Entry {
	key := ChunkKey{CX: cx, CZ: cz}
	var out []*Entry
	for pos, e := range s.entries {
		if ChunkOf(pos) == key {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

func (s *MemoryStore) BatchComplete(entries []*Entry) {}

func (s *MemoryStore) All() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Pos, entries[j].Pos
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.Y < b.Y
	})
}
