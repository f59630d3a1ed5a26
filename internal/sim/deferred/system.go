package deferred

import (
	"fmt"
	"log"
)

// Config carries the system's construction-time knobs.
type Config struct {
	// Debug enables per-dispatch trace logging. No behavioral effect.
	Debug bool
}

// System orchestrates the deferred command lifecycle: registration,
// pre-ready buffering, per-location storage, and trigger-on-load
// dispatch. It runs only on the host's simulation goroutine and never
// blocks; both host events (StoreReady, ChunkLoaded) are delivered
// synchronously from that goroutine.
type System struct {
	cfg      Config
	registry *Registry
	resolver CellResolver

	store LocationStore
	ready bool
	queue preReadyQueue

	log *log.Logger // optional; may be nil
}

func NewSystem(cfg Config, reg *Registry, resolver CellResolver) *System {
	return &System{
		cfg:      cfg,
		registry: reg,
		resolver: resolver,
	}
}

// SetLogger installs an optional diagnostic logger.
func (s *System) SetLogger(l *log.Logger) { s.log = l }

// Ready reports whether the location store is attached.
func (s *System) Ready() bool { return s.ready }

// AddCommand schedules cmd to run when the chunk containing pos loads.
// It is the sole public scheduling entry point and is safe to call at
// any time: before the store is ready the command is buffered, after
// readiness it is validated and appended to the location's pending set.
func (s *System) AddCommand(pos Vec3i, cmd Command) error {
	if !s.ready {
		s.queue.enqueue(pos, cmd)
		return nil
	}
	if err := s.validate(cmd); err != nil {
		return err
	}
	e := s.store.Get(pos)
	if e == nil {
		e = s.store.Create(pos)
	}
	e.Commands = append(e.Commands, cmd)
	if err := s.store.Update(e); err != nil {
		return fmt.Errorf("persist command %q at %v: %w", cmd.Name, pos, err)
	}
	return nil
}

// validate runs once, at registration time. Commands are not
// re-validated at dispatch: a handler deregistered after queueing
// surfaces as a dispatch-time missing handler, logged and consumed.
func (s *System) validate(cmd Command) error {
	if cmd.Name == "" {
		return &ValidationError{Reason: "command name must be a non-empty string"}
	}
	if _, ok := s.registry.Lookup(cmd.Name); !ok {
		return &ValidationError{Name: cmd.Name, Reason: "no handler registered"}
	}
	if schema, ok := s.registry.paramsSchema(cmd.Name); ok {
		params := any(cmd.Params)
		if cmd.Params == nil {
			params = map[string]any{}
		}
		if err := schema.Validate(params); err != nil {
			return &ValidationError{Name: cmd.Name, Reason: fmt.Sprintf("params: %v", err)}
		}
	}
	return nil
}

// StoreReady transitions the system to ready and drains the pre-ready
// queue FIFO into the store. It fires once per process under normal
// operation; on a hot-reload style re-entry it re-binds the store handle
// (which carries any previously persisted pending sets) without
// draining again.
func (s *System) StoreReady(store LocationStore) {
	s.store = store
	if s.ready {
		return
	}
	s.ready = true
	s.queue.drainInto(s)
}

// ChunkLoaded dispatches every pending command stored inside chunk
// (cx, cz). Per command: resolve the cell, apply the run-without-cell
// policy, invoke the handler, and keep or consume per its disposition.
// Per location: rewrite the kept subset in relative order, or delete the
// entry when nothing was kept. One bad entry never aborts the batch.
func (s *System) ChunkLoaded(cx, cz int) {
	if !s.ready {
		return
	}
	entries := s.store.EntriesInChunk(cx, cz)
	for _, e := range entries {
		s.dispatchEntry(e)
	}
	s.store.BatchComplete(entries)
}

func (s *System) dispatchEntry(e *Entry) {
	cell, resolved := s.resolver.ResolveCell(e.Pos)
	if !resolved {
		cell = nil
	}

	kept := make([]Command, 0, len(e.Commands))
	for _, cmd := range e.Commands {
		if !resolved && !cmd.RunWithoutCell {
			// Cell gone and the command didn't opt in: dropped for good.
			s.debugf("drop %q at %v: cell unresolved", cmd.Name, e.Pos)
			continue
		}
		h, ok := s.registry.Lookup(cmd.Name)
		if !ok {
			s.logf("dispatch: no handler for %q at %v; consuming", cmd.Name, e.Pos)
			continue
		}
		if h(cell, cmd) == Keep {
			kept = append(kept, cmd)
		}
	}

	if len(kept) == 0 {
		if err := s.store.Delete(e); err != nil {
			s.logf("dispatch: delete entry at %v: %v", e.Pos, err)
		}
		return
	}
	e.Commands = kept
	if err := s.store.Update(e); err != nil {
		s.logf("dispatch: update entry at %v: %v", e.Pos, err)
	}
}

// Pending returns a copy of every stored entry, for snapshot export and
// the debug inspector. Returns nil when the store cannot enumerate.
func (s *System) Pending() []Entry {
	if !s.ready {
		return nil
	}
	en, ok := s.store.(Enumerator)
	if !ok {
		return nil
	}
	entries := en.All()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		cp := Entry{Pos: e.Pos, Commands: make([]Command, len(e.Commands))}
		copy(cp.Commands, e.Commands)
		out = append(out, cp)
	}
	return out
}

func (s *System) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *System) debugf(format string, args ...any) {
	if s.cfg.Debug && s.log != nil {
		s.log.Printf(format, args...)
	}
}
