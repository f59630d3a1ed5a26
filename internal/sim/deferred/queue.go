package deferred

type queuedCommand struct {
	Pos Vec3i
	Cmd Command
}

// preReadyQueue buffers commands added before the location store is
// available. It is drained exactly once, in insertion order, when the
// store becomes ready, and is unusable afterwards: the system's
// readiness check routes later adds straight to the store.
type preReadyQueue struct {
	pending []queuedCommand
	drained bool
}

func (q *preReadyQueue) enqueue(pos Vec3i, cmd Command) {
	q.pending = append(q.pending, queuedCommand{Pos: pos, Cmd: cmd})
}

// drainInto replays every queued command through the system's add path
// in original insertion order, then discards the queue. A second call
// is a no-op, not an error.
func (q *preReadyQueue) drainInto(s *System) {
	if q.drained {
		return
	}
	q.drained = true
	pending := q.pending
	q.pending = nil
	for _, qc := range pending {
		if err := s.AddCommand(qc.Pos, qc.Cmd); err != nil {
			s.logf("drain: drop command %q at %v: %v", qc.Cmd.Name, qc.Pos, err)
		}
	}
}
