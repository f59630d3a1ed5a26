package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	WorldID    string `yaml:"world_id"`
	TickRateHz int    `yaml:"tick_rate_hz"`
	Seed       int64  `yaml:"seed"`

	WorldBoundaryR int `yaml:"world_boundary_r"`
	StreamRadius   int `yaml:"stream_radius"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Debug bool `yaml:"debug"`
}

func Defaults() Tuning {
	return Tuning{
		WorldID:            "world_1",
		TickRateHz:         5,
		Seed:               1337,
		WorldBoundaryR:     512,
		StreamRadius:       2,
		SnapshotEveryTicks: 3000,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 5
	}
	if t.StreamRadius <= 0 {
		t.StreamRadius = 2
	}
	return t, nil
}
