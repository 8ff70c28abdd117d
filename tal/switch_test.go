package tal

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

func exitSetOf(classes ...ExitClass) ExitSet {
	es := ExitSet{}
	for i, c := range classes {
		es[c] = layout.Node{X: int64(i+1) * layout.Block}
	}
	return es
}

var allStates = []SwitchState{SwitchNormal, SwitchReverseLeft, SwitchReverseRight}

func TestNextState3Way(t *testing.T) {
	exits := exitSetOf(ExitStraight, ExitLeft, ExitRight)
	expected := []SwitchState{SwitchReverseLeft, SwitchReverseRight, SwitchNormal}
	s := SwitchNormal
	for i, e := range expected {
		s = NextState(s, exits)
		if s != e {
			t.Fatalf("cycle %d: expected %s, got %s", i, e, s)
		}
	}
}

func TestNextStateSkipsAbsent(t *testing.T) {
	for _, c := range []struct {
		exits    ExitSet
		from     SwitchState
		expected SwitchState
	}{
		{exitSetOf(ExitStraight, ExitLeft), SwitchNormal, SwitchReverseLeft},
		{exitSetOf(ExitStraight, ExitLeft), SwitchReverseLeft, SwitchNormal},
		{exitSetOf(ExitStraight, ExitRight), SwitchNormal, SwitchReverseRight},
		{exitSetOf(ExitStraight, ExitRight), SwitchReverseRight, SwitchNormal},
		{exitSetOf(ExitLeft, ExitRight), SwitchReverseLeft, SwitchReverseRight},
		{exitSetOf(ExitLeft, ExitRight), SwitchReverseRight, SwitchReverseLeft},
		{exitSetOf(ExitStraight), SwitchNormal, SwitchNormal},
		{ExitSet{}, SwitchReverseLeft, SwitchReverseLeft},
	} {
		t.Run(fmt.Sprintf("%s-%s", c.exits.Classes(), c.from), func(t *testing.T) {
			if got := NextState(c.from, c.exits); got != c.expected {
				t.Fatalf("expected %s, got %s", c.expected, got)
			}
		})
	}
}

func TestCycleClosure(t *testing.T) {
	sets := []ExitSet{
		exitSetOf(ExitStraight),
		exitSetOf(ExitStraight, ExitLeft),
		exitSetOf(ExitStraight, ExitRight),
		exitSetOf(ExitLeft, ExitRight),
		exitSetOf(ExitStraight, ExitLeft, ExitRight),
	}
	for _, exits := range sets {
		for _, start := range allStates {
			if !exits.Has(start.Class()) {
				continue
			}
			t.Run(fmt.Sprintf("%s-%s", exits.Classes(), start), func(t *testing.T) {
				s := start
				for i := 0; i < exits.Len(); i++ {
					s = NextState(s, exits)
					if !exits.Has(s.Class()) {
						t.Fatalf("visited invalid state %s", s)
					}
					if i < exits.Len()-1 && s == start {
						t.Fatalf("returned to start early after %d cycles", i+1)
					}
				}
				if s != start {
					t.Fatalf("expected to return to %s, got %s", start, s)
				}
			})
		}
	}
}

func TestNormalizeState(t *testing.T) {
	for _, c := range []struct {
		exits    ExitSet
		from     SwitchState
		expected SwitchState
	}{
		{exitSetOf(ExitStraight, ExitRight), SwitchReverseLeft, SwitchNormal},
		{exitSetOf(ExitStraight, ExitRight), SwitchReverseRight, SwitchReverseRight},
		{exitSetOf(ExitLeft, ExitRight), SwitchNormal, SwitchReverseLeft},
		{exitSetOf(ExitRight), SwitchReverseLeft, SwitchReverseRight},
		{exitSetOf(ExitStraight, ExitLeft, ExitRight), SwitchReverseLeft, SwitchReverseLeft},
	} {
		t.Run(fmt.Sprintf("%s-%s", c.exits.Classes(), c.from), func(t *testing.T) {
			got, err := NormalizeState(c.from, c.exits)
			if err != nil {
				t.Fatalf("NormalizeState: %s", err)
			}
			if got != c.expected {
				t.Fatalf("expected %s, got %s", c.expected, got)
			}
		})
	}
	_, err := NormalizeState(SwitchNormal, ExitSet{})
	var nea *NoExitAvailableError
	if !errors.As(err, &nea) {
		t.Fatalf("expected NoExitAvailableError, got %v", err)
	}
}

func TestOverlayFor(t *testing.T) {
	for _, c := range []struct {
		exits    ExitSet
		state    SwitchState
		expected Overlay
	}{
		{exitSetOf(ExitStraight, ExitLeft, ExitRight), SwitchNormal, Overlay3WayStraight},
		{exitSetOf(ExitStraight, ExitLeft, ExitRight), SwitchReverseLeft, Overlay3WayLeft},
		{exitSetOf(ExitStraight, ExitLeft, ExitRight), SwitchReverseRight, Overlay3WayRight},
		{exitSetOf(ExitStraight, ExitLeft), SwitchNormal, OverlayLeftStraight},
		{exitSetOf(ExitStraight, ExitLeft), SwitchReverseLeft, OverlayLeftTurn},
		{exitSetOf(ExitStraight, ExitRight), SwitchNormal, OverlayRightStraight},
		{exitSetOf(ExitStraight, ExitRight), SwitchReverseRight, OverlayRightTurn},
		{exitSetOf(ExitLeft, ExitRight), SwitchReverseLeft, OverlayNone},
		{exitSetOf(ExitStraight), SwitchNormal, OverlayNone},
	} {
		if got := OverlayFor(c.exits, c.state); got != c.expected {
			t.Errorf("%s %s: expected %s, got %s", c.exits.Classes(), c.state, c.expected, got)
		}
	}
}

func TestSwitchStateText(t *testing.T) {
	type wrapper struct {
		State SwitchState `json:"state"`
	}
	for _, s := range allStates {
		data, err := json.Marshal(wrapper{s})
		if err != nil {
			t.Fatalf("marshal %s: %s", s, err)
		}
		expected := fmt.Sprintf(`{"state":%q}`, s.SerializedName())
		if string(data) != expected {
			t.Fatalf("expected %s, got %s", expected, data)
		}
		var w wrapper
		if err := json.Unmarshal(data, &w); err != nil {
			t.Fatalf("unmarshal %s: %s", data, err)
		}
		if w.State != s {
			t.Fatalf("expected %s, got %s", s, w.State)
		}
	}
	if _, err := ParseSwitchState("sideways"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExitSetJSON(t *testing.T) {
	es := exitSetOf(ExitStraight, ExitLeft)
	data, err := json.Marshal(es)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	var es2 ExitSet
	if err := json.Unmarshal(data, &es2); err != nil {
		t.Fatalf("unmarshal %s: %s", data, err)
	}
	if !cmp.Equal(es, es2) {
		t.Fatalf("diff: %s", cmp.Diff(es, es2))
	}
}
