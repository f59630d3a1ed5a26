package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"chunkwake.ai/internal/persistence/locdb"
	"chunkwake.ai/internal/persistence/snapshot"
	"chunkwake.ai/internal/sim/deferred"
	"chunkwake.ai/internal/sim/tuning"
	"chunkwake.ai/internal/sim/world"
	"chunkwake.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "", "world id (default: from tuning)")
		seed       = flag.Int64("seed", 0, "world seed override (0 = from tuning)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		debug = flag.Bool("debug", false, "enable deferred dispatch trace logging")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if *worldID != "" {
		tune.WorldID = *worldID
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if *debug {
		tune.Debug = true
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.WorldID)
	_ = os.MkdirAll(worldDir, 0o755)

	w := world.New(world.WorldConfig{
		ID:                 tune.WorldID,
		TickRateHz:         tune.TickRateHz,
		Seed:               tune.Seed,
		BoundaryR:          tune.WorldBoundaryR,
		StreamRadius:       tune.StreamRadius,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	})
	w.SetLogger(logger)

	reg := deferred.NewRegistry()
	sys := deferred.NewSystem(deferred.Config{Debug: tune.Debug}, reg, w)
	sys.SetLogger(logger)
	w.AttachDeferred(sys)
	world.RegisterBuiltins(reg, w)

	// Durable location store. Attaching under the world id re-binds any
	// pending sets a previous process left behind.
	store, err := locdb.Open(filepath.Join(worldDir, "pending.db"))
	if err != nil {
		logger.Fatalf("open location store: %v", err)
	}
	defer store.Close()
	store.SetLogger(logger)
	resumed, err := store.Attach(tune.WorldID)
	if err != nil {
		logger.Fatalf("attach location store: %v", err)
	}
	if resumed {
		logger.Printf("reattached to persisted pending sets for %s", tune.WorldID)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != tune.WorldID {
			logger.Fatalf("snapshot world id mismatch: tuning=%s snap=%s", tune.WorldID, snap.Header.WorldID)
		}
		// The durable store already carries pending sets; nil skips
		// re-seeding them from the snapshot.
		if err := w.ImportSnapshot(snap, nil); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	// The persistent-object subsystem is now available: this fires the
	// ready transition and drains anything queued during startup.
	sys.StoreReady(store)

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if blob, err := store.Blob(); err == nil {
					snap.Deferred.Blob = blob
				}
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()

		fmt.Fprintf(rw, "# HELP chunkwake_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE chunkwake_world_tick gauge\n")
		fmt.Fprintf(rw, "chunkwake_world_tick{world=%q} %d\n", tune.WorldID, m.Tick)

		fmt.Fprintf(rw, "# HELP chunkwake_world_agents Current number of agents.\n")
		fmt.Fprintf(rw, "# TYPE chunkwake_world_agents gauge\n")
		fmt.Fprintf(rw, "chunkwake_world_agents{world=%q} %d\n", tune.WorldID, m.Agents)

		fmt.Fprintf(rw, "# HELP chunkwake_world_loaded_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE chunkwake_world_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "chunkwake_world_loaded_chunks{world=%q} %d\n", tune.WorldID, m.LoadedChunks)

		fmt.Fprintf(rw, "# HELP chunkwake_pending_locations Locations with pending deferred commands.\n")
		fmt.Fprintf(rw, "# TYPE chunkwake_pending_locations gauge\n")
		fmt.Fprintf(rw, "chunkwake_pending_locations{world=%q} %d\n", tune.WorldID, m.PendingLocations)
	})

	// Local-only developer endpoints.
	mux.HandleFunc("/admin/v1/command", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var body struct {
			Pos [3]int           `json:"pos"`
			Cmd deferred.Command `json:"command"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		resp := make(chan error, 1)
		select {
		case w.Commands() <- world.CommandRequest{
			Pos:  world.Vec3i{X: body.Pos[0], Y: body.Pos[1], Z: body.Pos[2]},
			Cmd:  body.Cmd,
			Resp: resp,
		}:
		default:
			http.Error(rw, "server busy", http.StatusServiceUnavailable)
			return
		}
		select {
		case err := <-resp:
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusUnprocessableEntity)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		case <-time.After(5 * time.Second):
			http.Error(rw, "timeout", http.StatusServiceUnavailable)
		}
	})

	obsSrv := observer.NewServer(w, logger)
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Slice(names, func(i, j int) bool {
		return snapTick(names[i]) < snapTick(names[j])
	})
	return filepath.Join(dir, names[len(names)-1])
}

func snapTick(name string) uint64 {
	var tick uint64
	_, _ = fmt.Sscanf(name, "%d.snap.zst", &tick)
	return tick
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
