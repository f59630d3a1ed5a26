package world

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"chunkwake.ai/internal/debugproto"
	"chunkwake.ai/internal/persistence/snapshot"
	"chunkwake.ai/internal/sim/deferred"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64
	BoundaryR  int

	// StreamRadius is how many chunks around each agent stay loaded.
	StreamRadius int

	SnapshotEveryTicks int
}

type JoinRequest struct {
	Name string
	Resp chan string // agent id
}

// CommandRequest routes a deferred command registration onto the world
// loop goroutine, where all deferred-system state lives.
type CommandRequest struct {
	Pos  Vec3i
	Cmd  deferred.Command
	Resp chan error
}

// Agent is a minimal inhabitant; its position drives chunk streaming.
type Agent struct {
	ID   string
	Name string
	Pos  Vec3i
}

// ItemDrop is a ground item spawned by the spawn_item command.
type ItemDrop struct {
	Pos   Vec3i
	Item  string
	Count int
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    WorldConfig
	chunks *ChunkStore

	tick atomic.Uint64

	agents map[string]*Agent
	loaded map[ChunkKey]bool

	items   []ItemDrop
	notices []string

	deferred *deferred.System

	join     chan JoinRequest
	leave    chan string
	commands chan CommandRequest
	stop     chan struct{}

	nextAgentNum atomic.Uint64
	metrics      atomic.Value // WorldMetrics
	pendingRows  atomic.Value // []debugproto.PendingRow

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	log *log.Logger
}

func New(cfg WorldConfig) *World {
	if cfg.StreamRadius <= 0 {
		cfg.StreamRadius = 2
	}
	return &World{
		cfg: cfg,
		chunks: NewChunkStore(WorldGen{
			Seed:      cfg.Seed,
			BoundaryR: cfg.BoundaryR,
		}),
		agents:   map[string]*Agent{},
		loaded:   map[ChunkKey]bool{},
		join:     make(chan JoinRequest, 64),
		leave:    make(chan string, 64),
		commands: make(chan CommandRequest, 1024),
		stop:     make(chan struct{}),
	}
}

// AttachDeferred binds the deferred command system this world drives.
// Must be called before the loop starts.
func (w *World) AttachDeferred(sys *deferred.System) { w.deferred = sys }

func (w *World) SetLogger(l *log.Logger)                       { w.log = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Join() chan<- JoinRequest        { return w.join }
func (w *World) Leave() chan<- string            { return w.leave }
func (w *World) Commands() chan<- CommandRequest { return w.commands }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingCommands []CommandRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.commands:
			pendingCommands = append(pendingCommands, req)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingCommands)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCommands = pendingCommands[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server loop. Intended for deterministic tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, commands []CommandRequest) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, commands)
	return tick
}

func (w *World) step(joins []JoinRequest, leaves []string, commands []CommandRequest) {
	nowTick := w.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	for _, id := range leaves {
		delete(w.agents, id)
	}
	for _, req := range joins {
		id := w.joinAgent(req.Name)
		if req.Resp != nil {
			req.Resp <- id
		}
	}

	// Deferred command registrations, in inbox order.
	for _, req := range commands {
		err := w.AddCommand(req.Pos, req.Cmd)
		if req.Resp != nil {
			req.Resp <- err
		}
	}

	w.streamChunks()

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick > 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(nowTick):
		default:
			w.logf("snapshot sink full; skipping tick %d", nowTick)
		}
	}

	w.publishMetrics(nowTick)
	w.tick.Store(nowTick + 1)
}

// streamChunks loads chunks around agents and unloads the rest. Every
// chunk crossing the unloaded->loaded edge fires the deferred dispatch
// trigger.
func (w *World) streamChunks() {
	wanted := map[ChunkKey]bool{}
	for _, a := range w.sortedAgents() {
		acx := floorDiv(a.Pos.X, 16)
		acz := floorDiv(a.Pos.Z, 16)
		r := w.cfg.StreamRadius
		for cz := acz - r; cz <= acz+r; cz++ {
			for cx := acx - r; cx <= acx+r; cx++ {
				wanted[ChunkKey{CX: cx, CZ: cz}] = true
			}
		}
	}

	for k := range w.loaded {
		if !wanted[k] {
			delete(w.loaded, k)
		}
	}

	var fresh []ChunkKey
	for k := range wanted {
		if !w.loaded[k] {
			fresh = append(fresh, k)
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].CX != fresh[j].CX {
			return fresh[i].CX < fresh[j].CX
		}
		return fresh[i].CZ < fresh[j].CZ
	})
	for _, k := range fresh {
		w.chunks.getOrGenChunk(k.CX, k.CZ)
		w.loaded[k] = true
		if w.deferred != nil {
			w.deferred.ChunkLoaded(k.CX, k.CZ)
		}
	}
}

// AddCommand schedules a deferred command. Callers off the world loop
// goroutine must go through Commands() instead.
func (w *World) AddCommand(pos Vec3i, cmd deferred.Command) error {
	if w.deferred == nil {
		return fmt.Errorf("no deferred system attached")
	}
	return w.deferred.AddCommand(deferred.Vec3i{X: pos.X, Y: pos.Y, Z: pos.Z}, cmd)
}

func (w *World) joinAgent(name string) string {
	if name == "" {
		name = "agent"
	}
	idNum := w.nextAgentNum.Add(1)
	id := fmt.Sprintf("A%d", idNum)
	spawn := int(idNum) * 2
	w.agents[id] = &Agent{
		ID:   id,
		Name: name,
		Pos:  Vec3i{X: spawn, Y: 0, Z: -spawn},
	}
	return id
}

func (w *World) sortedAgents() []*Agent {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.agents[id])
	}
	return out
}

func (w *World) BlockAt(pos Vec3i) uint16 { return w.chunks.GetBlock(pos) }

func (w *World) IsChunkLoaded(cx, cz int) bool {
	return w.loaded[ChunkKey{CX: cx, CZ: cz}]
}

func (w *World) Items() []ItemDrop { return append([]ItemDrop(nil), w.items...) }

func (w *World) Notices() []string { return append([]string(nil), w.notices...) }

func (w *World) spawnItem(pos Vec3i, item string, count int) {
	w.items = append(w.items, ItemDrop{Pos: pos, Item: item, Count: count})
}

func (w *World) announce(msg string) {
	w.notices = append(w.notices, msg)
	if len(w.notices) > 256 {
		w.notices = w.notices[len(w.notices)-256:]
	}
}

// DebugSetAgentPos teleports an agent. Test helper; streaming reacts on
// the next step.
func (w *World) DebugSetAgentPos(id string, pos Vec3i) bool {
	a := w.agents[id]
	if a == nil {
		return false
	}
	a.Pos = pos
	return true
}

// DebugSetBoundary shrinks or grows the world boundary in place, so
// tests can make previously valid cells unresolvable.
func (w *World) DebugSetBoundary(r int) { w.chunks.gen.BoundaryR = r }

// DebugSetBlock writes a block by palette name. Test helper.
func (w *World) DebugSetBlock(pos Vec3i, blockName string) error {
	b, ok := BlockByName(blockName)
	if !ok {
		return fmt.Errorf("unknown block: %s", blockName)
	}
	w.chunks.SetBlock(pos, b)
	return nil
}

type WorldMetrics struct {
	Tick             uint64 `json:"tick"`
	Agents           int    `json:"agents"`
	LoadedChunks     int    `json:"loaded_chunks"`
	PendingLocations int    `json:"pending_locations"`
}

// Metrics returns the snapshot published at the last tick boundary.
// Safe to call from other goroutines.
func (w *World) Metrics() WorldMetrics {
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

// Pending rows need a full store enumeration, which on the durable
// store is a table scan plus a JSON decode per entry, so they refresh
// on a slower cadence than the per-tick counters.
const pendingRowsEveryTicks = 10

func (w *World) publishMetrics(nowTick uint64) {
	m := WorldMetrics{
		Tick:         nowTick,
		Agents:       len(w.agents),
		LoadedChunks: len(w.loaded),
	}
	rows, _ := w.pendingRows.Load().([]debugproto.PendingRow)
	if w.deferred != nil && (rows == nil || nowTick%pendingRowsEveryTicks == 0) {
		rows = []debugproto.PendingRow{}
		for _, e := range w.deferred.Pending() {
			row := debugproto.PendingRow{Pos: [3]int{e.Pos.X, e.Pos.Y, e.Pos.Z}}
			for _, cmd := range e.Commands {
				row.Commands = append(row.Commands, debugproto.CommandRef{
					Name:           cmd.Name,
					RunWithoutCell: cmd.RunWithoutCell,
				})
			}
			rows = append(rows, row)
		}
	}
	m.PendingLocations = len(rows)
	w.metrics.Store(m)
	w.pendingRows.Store(rows)
}

// PendingRows returns the inspector rows published at the last tick
// boundary. Safe to call from other goroutines.
func (w *World) PendingRows() []debugproto.PendingRow {
	rows, _ := w.pendingRows.Load().([]debugproto.PendingRow)
	return rows
}

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}
