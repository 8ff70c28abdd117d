package tal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

type SwitchEventKind string

const (
	SwitchEventDesignated SwitchEventKind = "designated"
	SwitchEventRemoved    SwitchEventKind = "removed"
	SwitchEventCycled     SwitchEventKind = "cycled"
	// SwitchEventNormalized is sent when the exits changed so that the state had to change.
	SwitchEventNormalized SwitchEventKind = "normalized"
	SwitchEventLocked     SwitchEventKind = "locked"
	SwitchEventUnlocked   SwitchEventKind = "unlocked"
	SwitchEventAutomatic  SwitchEventKind = "automatic"
	SwitchEventTraversed  SwitchEventKind = "traversed"
)

// SwitchEvent is a change to (or use of) a switch.
type SwitchEvent struct {
	ID        uuid.UUID       `json:"id"`
	Kind      SwitchEventKind `json:"kind"`
	State     SwitchState     `json:"state"`
	Automatic bool            `json:"automatic"`
	Locked    bool            `json:"locked"`
	// Exit and Train are only set for SwitchEventTraversed.
	Exit  *layout.Node `json:"exit,omitempty"`
	Train uuid.UUID    `json:"train"`
}

func (e SwitchEvent) String() string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "switch %s %s %s", e.ID, e.Kind, e.State)
	if e.Exit != nil {
		fmt.Fprintf(b, " exit%s", e.Exit)
	}
	return b.String()
}

// TrainEvent is a train moving (or failing to move) in a Simulator.
type TrainEvent struct {
	Train uuid.UUID   `json:"train"`
	Edge  layout.Edge `json:"edge"`
	// Switch is the switch passed, or uuid.Nil.
	Switch  uuid.UUID `json:"switch"`
	Stopped bool      `json:"stopped"`
	Reason  string    `json:"reason,omitempty"`
}

func (e TrainEvent) String() string {
	if e.Stopped {
		return fmt.Sprintf("train %s stopped at %s: %s", e.Train, e.Edge.To, e.Reason)
	}
	return fmt.Sprintf("train %s moved %s", e.Train, e.Edge)
}
