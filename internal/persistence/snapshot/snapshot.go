package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64 `json:"seed"`
	TickRate           int   `json:"tick_rate_hz"`
	BoundaryR          int   `json:"boundary_r"`
	StreamRadius       int   `json:"stream_radius"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks,omitempty"`

	Chunks []ChunkV1 `json:"chunks"`
	Agents []AgentV1 `json:"agents"`

	// Deferred holds the command system's declared persisted fields:
	// the per-location pending sets plus its free-form data blob.
	Deferred DeferredV1 `json:"deferred"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextAgent uint64 `json:"next_agent"`
}

type ChunkV1 struct {
	CX     int      `json:"cx"`
	CZ     int      `json:"cz"`
	Blocks []uint16 `json:"blocks"`
}

type AgentV1 struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pos  [3]int `json:"pos"`
}

type DeferredV1 struct {
	Blob      []byte      `json:"blob,omitempty"`
	Locations []PendingV1 `json:"locations"`
}

type PendingV1 struct {
	Pos      [3]int      `json:"pos"`
	Commands []CommandV1 `json:"commands"`
}

// CommandV1 carries params as raw JSON so the gob stream stays free of
// interface values.
type CommandV1 struct {
	Name           string `json:"name"`
	ParamsJSON     []byte `json:"params_json,omitempty"`
	RunWithoutCell bool   `json:"run_without_cell,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is informational; the gob stream repeats it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
