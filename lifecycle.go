package goMFA

import "fmt"

// lifecycleEvent drives MFAMethod state changes.
type lifecycleEvent uint8

const (
	eventFirstVerification lifecycleEvent = iota + 1
	eventDisable
)

func (e lifecycleEvent) String() string {
	switch e {
	case eventFirstVerification:
		return "first_verification"
	case eventDisable:
		return "disable"
	default:
		return "unknown"
	}
}

// lifecycle is the complete transition table: [from][event] -> to.
// Disabled has no outgoing edges.
var lifecycle = map[MethodState]map[lifecycleEvent]MethodState{
	StateProvisioned: {
		eventFirstVerification: StateEnabled,
		eventDisable:           StateDisabled,
	},
	StateEnabled: {
		eventDisable: StateDisabled,
	},
}

// nextState returns the state reached from "from" on ev. Every pair missing
// from the table reports ErrMethodNotEnabled and leaves the state unchanged.
func nextState(from MethodState, ev lifecycleEvent) (MethodState, error) {
	if to, ok := lifecycle[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrMethodNotEnabled, ev, from)
}
