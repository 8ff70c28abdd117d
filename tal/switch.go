package tal

import "fmt"

// SwitchState is which exit a manual switch is set to.
type SwitchState int

const (
	SwitchNormal SwitchState = iota
	SwitchReverseLeft
	SwitchReverseRight

	numSwitchStates = 3
)

func (s SwitchState) String() string {
	switch s {
	case SwitchNormal:
		return "ssNormal"
	case SwitchReverseLeft:
		return "ssReverseLeft"
	case SwitchReverseRight:
		return "ssReverseRight"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

// SerializedName is the name used in persisted data and tooltips (switch.state.<name>).
func (s SwitchState) SerializedName() string {
	switch s {
	case SwitchNormal:
		return "normal"
	case SwitchReverseLeft:
		return "reverse_left"
	case SwitchReverseRight:
		return "reverse_right"
	default:
		return fmt.Sprintf("invalid_%d", int(s))
	}
}

func ParseSwitchState(name string) (SwitchState, error) {
	for s := SwitchState(0); s < numSwitchStates; s++ {
		if s.SerializedName() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid switch state %q", name)
}

func (s SwitchState) MarshalText() ([]byte, error) {
	if s < 0 || s >= numSwitchStates {
		return nil, fmt.Errorf("invalid switch state %d", int(s))
	}
	return []byte(s.SerializedName()), nil
}

func (s *SwitchState) UnmarshalText(text []byte) error {
	s2, err := ParseSwitchState(string(text))
	if err != nil {
		return err
	}
	*s = s2
	return nil
}

// Class is the exit class this state selects.
func (s SwitchState) Class() ExitClass {
	switch s {
	case SwitchNormal:
		return ExitStraight
	case SwitchReverseLeft:
		return ExitLeft
	case SwitchReverseRight:
		return ExitRight
	default:
		panic(fmt.Sprintf("invalid switch state %d", int(s)))
	}
}

// NextState returns the state after cur, skipping states whose exit is not in exits.
// If no state is valid, cur is returned.
func NextState(cur SwitchState, exits ExitSet) SwitchState {
	for i := 1; i <= numSwitchStates; i++ {
		s := SwitchState((int(cur) + i) % numSwitchStates)
		if exits.Has(s.Class()) {
			return s
		}
	}
	return cur
}

// NormalizeState returns cur if its exit is in exits, and otherwise the first state (in declaration order) that is valid.
func NormalizeState(cur SwitchState, exits ExitSet) (SwitchState, error) {
	if exits.Len() == 0 {
		return cur, &NoExitAvailableError{}
	}
	if cur >= 0 && cur < numSwitchStates && exits.Has(cur.Class()) {
		return cur, nil
	}
	for s := SwitchState(0); s < numSwitchStates; s++ {
		if exits.Has(s.Class()) {
			return s, nil
		}
	}
	panic("unreachable")
}

// Overlay is the marker shown on a switch for its shape and state.
type Overlay string

const (
	OverlayNone          Overlay = "none"
	Overlay3WayStraight  Overlay = "3way_straight"
	Overlay3WayLeft      Overlay = "3way_left"
	Overlay3WayRight     Overlay = "3way_right"
	OverlayLeftStraight  Overlay = "left_straight"
	OverlayLeftTurn      Overlay = "left_turn"
	OverlayRightStraight Overlay = "right_straight"
	OverlayRightTurn     Overlay = "right_turn"
)

// OverlayFor returns the overlay for a switch with exits set to s.
// Wyes (left and right without straight) have no overlay.
func OverlayFor(exits ExitSet, s SwitchState) Overlay {
	straight, left, right := exits.Has(ExitStraight), exits.Has(ExitLeft), exits.Has(ExitRight)
	switch {
	case straight && left && right:
		switch s {
		case SwitchNormal:
			return Overlay3WayStraight
		case SwitchReverseLeft:
			return Overlay3WayLeft
		case SwitchReverseRight:
			return Overlay3WayRight
		}
	case straight && left:
		if s == SwitchNormal {
			return OverlayLeftStraight
		}
		return OverlayLeftTurn
	case straight && right:
		if s == SwitchNormal {
			return OverlayRightStraight
		}
		return OverlayRightTurn
	}
	return OverlayNone
}

// Trigger is what asked a switch to cycle.
type Trigger int

const (
	// TriggerManual is a person using the switch.
	TriggerManual Trigger = iota
	// TriggerImpulse is e.g. a projectile hitting the switch.
	TriggerImpulse
)

func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerImpulse:
		return "impulse"
	default:
		return fmt.Sprintf("%d", int(t))
	}
}

func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "manual":
		return TriggerManual, nil
	case "impulse":
		return TriggerImpulse, nil
	}
	return 0, fmt.Errorf("invalid trigger %q", s)
}

func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
