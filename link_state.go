package pppring

import "fmt"

// LinkState is the supervisor's view of a link.
type LinkState int

const (
	// LinkDown means no helper is believed to be running.
	LinkDown LinkState = iota
	// LinkStarting means a helper was spawned (or adopted) but its
	// status artifact has not been seen yet.
	LinkStarting
	// LinkUp means the artifact was parsed and the write socket is open.
	LinkUp
)

func (s LinkState) String() string {
	switch s {
	case LinkDown:
		return "down"
	case LinkStarting:
		return "starting"
	case LinkUp:
		return "up"
	default:
		return "unknown"
	}
}

// linkTransitions lists, for each state, the states it may move to.
var linkTransitions = map[LinkState][]LinkState{
	LinkDown:     {LinkStarting},
	LinkStarting: {LinkUp, LinkDown},
	LinkUp:       {LinkDown},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to LinkState) bool {
	for _, s := range linkTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseLinkState is the inverse of LinkState.String.
func ParseLinkState(s string) (LinkState, error) {
	switch s {
	case "down":
		return LinkDown, nil
	case "starting":
		return LinkStarting, nil
	case "up":
		return LinkUp, nil
	default:
		return LinkDown, fmt.Errorf("unknown link state %q", s)
	}
}
