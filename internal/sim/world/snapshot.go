package world

import (
	"encoding/json"
	"fmt"

	"chunkwake.ai/internal/persistence/snapshot"
	"chunkwake.ai/internal/sim/deferred"
)

const snapshotVersion = 1

func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshotVersion,
			WorldID: w.cfg.ID,
			Tick:    tick,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		BoundaryR:          w.chunks.gen.BoundaryR,
		StreamRadius:       w.cfg.StreamRadius,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Counters: snapshot.CountersV1{
			NextAgent: w.nextAgentNum.Load(),
		},
	}

	for _, k := range w.chunks.GeneratedChunkKeys() {
		ch := w.chunks.chunks[k]
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		snap.Chunks = append(snap.Chunks, snapshot.ChunkV1{CX: k.CX, CZ: k.CZ, Blocks: blocks})
	}

	for _, a := range w.sortedAgents() {
		snap.Agents = append(snap.Agents, snapshot.AgentV1{
			ID:   a.ID,
			Name: a.Name,
			Pos:  [3]int{a.Pos.X, a.Pos.Y, a.Pos.Z},
		})
	}

	if w.deferred != nil {
		snap.Deferred.Locations = EncodePending(w.deferred.Pending())
	}
	return snap
}

// ImportSnapshot restores world state. When store is non-nil the
// snapshot's pending sets are restored into it as well; pass nil when
// the store is durable and already carries them (locdb).
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1, store deferred.LocationStore) error {
	if snap.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}

	for _, ch := range snap.Chunks {
		if len(ch.Blocks) != 16*16 {
			return fmt.Errorf("chunk (%d,%d): bad block count %d", ch.CX, ch.CZ, len(ch.Blocks))
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		w.chunks.chunks[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = &Chunk{CX: ch.CX, CZ: ch.CZ, Blocks: blocks}
	}

	for _, a := range snap.Agents {
		w.agents[a.ID] = &Agent{
			ID:   a.ID,
			Name: a.Name,
			Pos:  Vec3i{X: a.Pos[0], Y: a.Pos[1], Z: a.Pos[2]},
		}
	}
	w.nextAgentNum.Store(snap.Counters.NextAgent)
	w.tick.Store(snap.Header.Tick + 1)

	if store != nil {
		entries, err := DecodePending(snap.Deferred.Locations)
		if err != nil {
			return err
		}
		if err := deferred.RestoreEntries(store, entries); err != nil {
			return fmt.Errorf("restore pending sets: %w", err)
		}
	}
	return nil
}

// EncodePending converts live pending entries to their persisted form,
// flattening params to raw JSON.
func EncodePending(entries []deferred.Entry) []snapshot.PendingV1 {
	out := make([]snapshot.PendingV1, 0, len(entries))
	for _, e := range entries {
		p := snapshot.PendingV1{Pos: [3]int{e.Pos.X, e.Pos.Y, e.Pos.Z}}
		for _, cmd := range e.Commands {
			var raw []byte
			if cmd.Params != nil {
				raw, _ = json.Marshal(cmd.Params)
			}
			p.Commands = append(p.Commands, snapshot.CommandV1{
				Name:           cmd.Name,
				ParamsJSON:     raw,
				RunWithoutCell: cmd.RunWithoutCell,
			})
		}
		out = append(out, p)
	}
	return out
}

func DecodePending(locs []snapshot.PendingV1) ([]deferred.Entry, error) {
	out := make([]deferred.Entry, 0, len(locs))
	for _, p := range locs {
		e := deferred.Entry{Pos: deferred.Vec3i{X: p.Pos[0], Y: p.Pos[1], Z: p.Pos[2]}}
		for _, c := range p.Commands {
			cmd := deferred.Command{Name: c.Name, RunWithoutCell: c.RunWithoutCell}
			if len(c.ParamsJSON) > 0 {
				if err := json.Unmarshal(c.ParamsJSON, &cmd.Params); err != nil {
					return nil, fmt.Errorf("pending command %q at %v: %w", c.Name, p.Pos, err)
				}
			}
			e.Commands = append(e.Commands, cmd)
		}
		out = append(out, e)
	}
	return out, nil
}
