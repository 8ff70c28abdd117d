package tal

import (
	"errors"
	"fmt"

	"nyiyui.ca/hato/kirikae/tal/layout"
)

// StaleReferenceError is returned when the incoming edge of a switch point is no longer in the graph.
// The switch point must be re-designated before retrying.
type StaleReferenceError struct {
	Edge layout.Edge
	// Err is the cause, if any (usually a *layout.NodeNotFoundError).
	Err error
}

func (e *StaleReferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stale reference to edge %s: %s", e.Edge, e.Err)
	}
	return fmt.Sprintf("stale reference to edge %s", e.Edge)
}

func (e *StaleReferenceError) Unwrap() error { return e.Err }

// NoExitAvailableError is returned when a switch has no exits. The switch is impassable until the graph is corrected.
type NoExitAvailableError struct {
	At layout.Node
}

func (e *NoExitAvailableError) Error() string {
	return fmt.Sprintf("no exit available at %s", e.At)
}

var (
	ErrUnknownSwitch   = errors.New("unknown switch")
	ErrDuplicateSwitch = errors.New("switch already designated")
	// ErrNoBearing is returned when the incoming edge of a switch point is vertical, so exits can't be told apart.
	ErrNoBearing = errors.New("incoming edge has no horizontal extent")
)
