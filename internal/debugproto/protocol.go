// Package debugproto defines the developer-only inspector protocol:
// JSON messages over a loopback websocket describing the deferred
// system's pending locations. Nothing here affects simulation state.
package debugproto

const Version = "1.0"

type SubscribeMsg struct {
	Type            string `json:"type"` // "SUBSCRIBE"
	ProtocolVersion string `json:"protocol_version"`
}

type RowsMsg struct {
	Type            string       `json:"type"` // "PENDING_ROWS"
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Rows            []PendingRow `json:"rows"`
}

// PendingRow is one inspector row: a location and its queued commands.
type PendingRow struct {
	Pos      [3]int       `json:"pos"`
	Commands []CommandRef `json:"commands"`
}

type CommandRef struct {
	Name           string `json:"name"`
	RunWithoutCell bool   `json:"run_without_cell,omitempty"`
}
