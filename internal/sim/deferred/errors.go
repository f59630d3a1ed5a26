package deferred

import "fmt"

// ValidationError rejects a single AddCommand call. It never corrupts
// queue or store state: validation runs before any mutation.
type ValidationError struct {
	Name   string // command name as supplied (may be empty)
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid command: %s", e.Reason)
	}
	return fmt.Sprintf("invalid command %q: %s", e.Name, e.Reason)
}
