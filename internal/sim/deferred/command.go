package deferred

import (
	"encoding/json"
	"fmt"
)

// Command is a named deferred action plus its caller-supplied parameters.
// Commands are pure data so they survive persistence and reload; the name
// resolves to a handler in the Registry at dispatch time.
type Command struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`

	// RunWithoutCell marks a command as still runnable when its world cell
	// cannot be resolved at dispatch time (e.g. the cell was removed from
	// the world after the command was queued).
	RunWithoutCell bool `json:"run_without_cell,omitempty"`
}

// Cell is the host's live handle for a resolved world cell. The deferred
// layer never inspects it; handlers assert it back to the host's type.
// A nil Cell means resolution failed and the command opted in via
// RunWithoutCell.
type Cell any

// Disposition is a handler's verdict on its command after one execution.
type Disposition int

const (
	// Consume removes the command permanently.
	Consume Disposition = iota
	// Keep re-runs the command the next time its location's chunk loads.
	Keep
)

// Handler executes one command against a resolved cell (nil when absent).
type Handler func(cell Cell, cmd Command) Disposition

// DecodeParams unmarshals a command's open parameter bag into a typed
// struct via a JSON round trip. Handlers use it to recover their own
// parameter shape.
func DecodeParams(cmd Command, out any) error {
	raw, err := json.Marshal(cmd.Params)
	if err != nil {
		return fmt.Errorf("params of %q: %w", cmd.Name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("params of %q: %w", cmd.Name, err)
	}
	return nil
}
