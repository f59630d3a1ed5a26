package world

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"chunkwake.ai/internal/sim/deferred"
)

// Built-in deferred commands. Each variant owns a typed params struct
// decoded from the command's open parameter bag, plus a schema enforced
// at registration time.

type setBlockParams struct {
	Block string `json:"block"`
}

type spawnItemParams struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type announceParams struct {
	Message string `json:"message"`
}

type beaconParams struct {
	Label      string `json:"label"`
	Persistent bool   `json:"persistent"`
}

var setBlockSchema = jsonschema.MustCompileString("set_block.json", `{
	"type": "object",
	"required": ["block"],
	"properties": {"block": {"type": "string"}}
}`)

var spawnItemSchema = jsonschema.MustCompileString("spawn_item.json", `{
	"type": "object",
	"required": ["item"],
	"properties": {
		"item": {"type": "string", "minLength": 1},
		"count": {"type": "integer", "minimum": 1}
	}
}`)

var announceSchema = jsonschema.MustCompileString("announce.json", `{
	"type": "object",
	"required": ["message"],
	"properties": {"message": {"type": "string"}}
}`)

var beaconSchema = jsonschema.MustCompileString("beacon.json", `{
	"type": "object",
	"required": ["label"],
	"properties": {
		"label": {"type": "string"},
		"persistent": {"type": "boolean"}
	}
}`)

// RegisterBuiltins installs the world's command handlers. Called once at
// startup, before the deferred system goes ready.
func RegisterBuiltins(reg *deferred.Registry, w *World) {
	reg.Register("set_block", func(cell deferred.Cell, cmd deferred.Command) deferred.Disposition {
		var p setBlockParams
		if err := deferred.DecodeParams(cmd, &p); err != nil {
			w.logf("set_block: %v", err)
			return deferred.Consume
		}
		b, ok := BlockByName(p.Block)
		if !ok {
			w.logf("set_block: unknown block %q", p.Block)
			return deferred.Consume
		}
		c, ok := cell.(*Cell)
		if !ok {
			// Queued with RunWithoutCell but the cell is required.
			w.logf("set_block: no cell at dispatch; dropping")
			return deferred.Consume
		}
		c.SetBlock(b)
		return deferred.Consume
	})
	reg.SetParamsSchema("set_block", setBlockSchema)

	reg.Register("spawn_item", func(cell deferred.Cell, cmd deferred.Command) deferred.Disposition {
		var p spawnItemParams
		if err := deferred.DecodeParams(cmd, &p); err != nil {
			w.logf("spawn_item: %v", err)
			return deferred.Consume
		}
		if p.Count <= 0 {
			p.Count = 1
		}
		c, ok := cell.(*Cell)
		if !ok {
			w.logf("spawn_item: no cell at dispatch; dropping")
			return deferred.Consume
		}
		w.spawnItem(c.Pos, p.Item, p.Count)
		return deferred.Consume
	})
	reg.SetParamsSchema("spawn_item", spawnItemSchema)

	// announce is typically queued with RunWithoutCell: the message
	// should go out even when the cell is gone.
	reg.Register("announce", func(cell deferred.Cell, cmd deferred.Command) deferred.Disposition {
		var p announceParams
		if err := deferred.DecodeParams(cmd, &p); err != nil {
			w.logf("announce: %v", err)
			return deferred.Consume
		}
		w.announce(p.Message)
		return deferred.Consume
	})
	reg.SetParamsSchema("announce", announceSchema)

	// beacon re-announces on every load of its chunk while persistent.
	reg.Register("beacon", func(cell deferred.Cell, cmd deferred.Command) deferred.Disposition {
		var p beaconParams
		if err := deferred.DecodeParams(cmd, &p); err != nil {
			w.logf("beacon: %v", err)
			return deferred.Consume
		}
		c, ok := cell.(*Cell)
		if !ok {
			w.logf("beacon: no cell at dispatch; dropping")
			return deferred.Consume
		}
		w.announce(fmt.Sprintf("beacon %s at (%d,%d,%d)", p.Label, c.Pos.X, c.Pos.Y, c.Pos.Z))
		if p.Persistent {
			return deferred.Keep
		}
		return deferred.Consume
	})
	reg.SetParamsSchema("beacon", beaconSchema)
}
