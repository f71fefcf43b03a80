package replay

import "fmt"

// State is a step of the replay state machine.
type State int

const (
	StateInit State = iota
	StateSiblingCreated
	StateMerged
	StateReplayed
	StatePromoted
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSiblingCreated:
		return "sibling_created"
	case StateMerged:
		return "merged"
	case StateReplayed:
		return "replayed"
	case StatePromoted:
		return "promoted"
	case StateCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the states reachable from each state. Replayed loops back to
// SiblingCreated once per additional source commit; Cleaned is reachable from
// everywhere because the scratch ref is released on failure too.
var transitions = map[State][]State{
	StateInit:           {StateSiblingCreated, StateCleaned},
	StateSiblingCreated: {StateMerged, StateCleaned},
	StateMerged:         {StateReplayed, StateCleaned},
	StateReplayed:       {StateSiblingCreated, StatePromoted, StateCleaned},
	StatePromoted:       {StateCleaned},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
