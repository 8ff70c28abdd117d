package tal

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

func TestSimulatorLoop(t *testing.T) {
	y := mustLayout(t, layout.InitTestbenchLoop)
	b := NewBoard(BoardConf{Comment: "loop", Topology: y})
	swID, err := b.Designate(SwitchConf{
		Comment:   "sw1",
		Incoming:  y.MustEdge("west", "sw1"),
		Automatic: true,
		Policy:    PolicyRoundRobin,
	})
	if err != nil {
		t.Fatalf("Designate: %s", err)
	}
	s := NewSimulator("loop", b)
	trainID, err := s.AddTrain(Train{Comment: "test", Prev: y.MustLookup("sw"), At: y.MustLookup("west")})
	if err != nil {
		t.Fatalf("AddTrain: %s", err)
	}
	var visited []string
	// one lap is 7 edges either way
	for i := 0; i < 14; i++ {
		s.Tick()
		tr := s.Trains()[0]
		if tr.Stopped {
			t.Fatalf("train stopped: %s", tr.StopReason)
		}
		if tr.ID != trainID {
			t.Fatalf("wrong train %s", tr.ID)
		}
		visited = append(visited, y.Comment(tr.At))
	}
	expected := []string{
		"sw1", "main", "join", "east", "se", "sw", "west",
		"sw1", "siding", "join", "east", "se", "sw", "west",
	}
	if !cmp.Equal(visited, expected) {
		t.Fatalf("visited diff: %s", cmp.Diff(visited, expected))
	}
	info, err := b.Info(swID)
	if err != nil {
		t.Fatalf("Info: %s", err)
	}
	if info.Active == nil || *info.Active != y.MustLookup("main") {
		t.Fatalf("expected switch back on main, got %#v", info.Active)
	}
}

func TestSimulatorDestination(t *testing.T) {
	y := mustLayout(t, layout.InitTestbench2Way)
	b := NewBoard(BoardConf{Topology: y})
	if _, err := b.Designate(SwitchConf{
		Incoming:  y.MustEdge("A", "B"),
		Automatic: true,
		Policy:    PolicyDestination,
	}); err != nil {
		t.Fatalf("Designate: %s", err)
	}
	s := NewSimulator("dest", b)
	dest := y.MustLookup("L2")
	if _, err := s.AddTrain(Train{Prev: y.MustLookup("A"), At: y.MustLookup("B"), Destination: &dest}); err != nil {
		t.Fatalf("AddTrain: %s", err)
	}
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	tr := s.Trains()[0]
	if !tr.Stopped || tr.StopReason != "arrived" || tr.At != dest {
		t.Fatalf("expected arrival at L2, got %s", tr)
	}
}

func TestSimulatorTurnBack(t *testing.T) {
	y := mustLayout(t, layout.InitTestbench2Way)
	b := NewBoard(BoardConf{Topology: y})
	s := NewSimulator("turnback", b)
	if _, err := s.AddTrain(Train{Prev: y.MustLookup("S"), At: y.MustLookup("S2")}); err != nil {
		t.Fatalf("AddTrain: %s", err)
	}
	var visited []string
	for i := 0; i < 4; i++ {
		s.Tick()
		visited = append(visited, y.Comment(s.Trains()[0].At))
	}
	expected := []string{"S", "B", "A", "B"}
	if !cmp.Equal(visited, expected) {
		t.Fatalf("visited diff: %s", cmp.Diff(visited, expected))
	}
}

func TestSimulatorImpassable(t *testing.T) {
	y := mustLayout(t, layout.InitTestbench3Way)
	b := NewBoard(BoardConf{Topology: y})
	if _, err := b.Designate(SwitchConf{Incoming: y.MustEdge("A", "B")}); err != nil {
		t.Fatalf("Designate: %s", err)
	}
	for _, c := range []string{"S", "L", "R"} {
		if err := y.RemoveNode(y.MustLookup(c)); err != nil {
			t.Fatalf("RemoveNode: %s", err)
		}
	}
	s := NewSimulator("impassable", b)
	if _, err := s.AddTrain(Train{Prev: y.MustLookup("A"), At: y.MustLookup("B")}); err != nil {
		t.Fatalf("AddTrain: %s", err)
	}
	s.Tick()
	tr := s.Trains()[0]
	if !tr.Stopped || !strings.Contains(tr.StopReason, "impassable") {
		t.Fatalf("expected train stopped at impassable switch, got %s", tr)
	}
	if tr.At != y.MustLookup("B") {
		t.Fatalf("train moved past impassable switch to %s", y.Comment(tr.At))
	}
}

func TestSimulatorAddTrainNoEdge(t *testing.T) {
	y := mustLayout(t, layout.InitTestbench3Way)
	s := NewSimulator("bad", NewBoard(BoardConf{Topology: y}))
	if _, err := s.AddTrain(Train{Prev: y.MustLookup("A"), At: y.MustLookup("S")}); err == nil {
		t.Fatal("expected error")
	}
}
