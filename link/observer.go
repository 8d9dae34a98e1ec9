package link

import (
	"time"

	"github.com/frobware/go-pppring"
)

// Transition records one supervisor state change.
type Transition struct {
	Device string
	From   pppring.LinkState
	To     pppring.LinkState
	Reason string
	// PID is the helper pid at the time of the change, zero if none.
	PID int
	At  time.Time
}

// Observer is told about every state change. It is called without the
// supervisor's lock held, in transition order.
type Observer interface {
	LinkStateChanged(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// LinkStateChanged calls f(t).
func (f ObserverFunc) LinkStateChanged(t Transition) { f(t) }

// Observers fans a transition out to several observers.
type Observers []Observer

// LinkStateChanged calls each observer in order.
func (o Observers) LinkStateChanged(t Transition) {
	for _, obs := range o {
		if obs != nil {
			obs.LinkStateChanged(t)
		}
	}
}
