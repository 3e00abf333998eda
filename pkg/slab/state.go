package slab

// State is the lifecycle position of a Slab.
type State int32

const (
	StateUninitialized State = iota
	// StateRegistered: counted by the network, no open contexts.
	StateRegistered
	// StateActive: registered with at least one open context.
	StateActive
	// StateDestroyed is terminal.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
