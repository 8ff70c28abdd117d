package tal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

func openTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := OpenModel(":memory:")
	if err != nil {
		t.Fatalf("OpenModel: %s", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestModel(t *testing.T) {
	m := openTestModel(t)
	y := mustLayout(t, layout.InitTestbench3Way)
	id := uuid.MustParse("2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91")
	sd := SwitchData{
		Comment:   "yard throat",
		Incoming:  y.MustEdge("A", "B"),
		State:     SwitchReverseRight,
		Automatic: true,
		Locked:    true,
		Policy:    PolicyRoundRobin,
	}
	if err := m.Save(id, sd); err != nil {
		t.Fatalf("Save: %s", err)
	}
	all, err := m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %s", err)
	}
	expected := map[uuid.UUID]SwitchData{id: sd}
	if !cmp.Equal(all, expected) {
		t.Fatalf("LoadAll diff: %s", cmp.Diff(all, expected))
	}
	if err := m.Delete(id); err != nil {
		t.Fatalf("Delete: %s", err)
	}
	if err := m.Delete(id); err != nil {
		t.Fatalf("Delete twice: %s", err)
	}
	all, err = m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %s", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected nothing, got %#v", all)
	}
}

func TestBoardPersistAndRestore(t *testing.T) {
	m := openTestModel(t)
	y := mustLayout(t, layout.InitTestbench3Way)
	b := NewBoard(BoardConf{Topology: y, Model: m})
	id, err := b.Designate(SwitchConf{Comment: "sw", Incoming: y.MustEdge("A", "B")})
	if err != nil {
		t.Fatalf("Designate: %s", err)
	}
	if _, _, err := b.RequestCycle(id, TriggerManual); err != nil {
		t.Fatalf("RequestCycle: %s", err)
	}
	if err := b.SetLocked(id, true); err != nil {
		t.Fatalf("SetLocked: %s", err)
	}

	b2 := NewBoard(BoardConf{Topology: y, Model: m})
	if err := b2.Restore(); err != nil {
		t.Fatalf("Restore: %s", err)
	}
	info, err := b2.Info(id)
	if err != nil {
		t.Fatalf("Info: %s", err)
	}
	if info.State != SwitchReverseLeft || !info.Locked || info.Comment != "sw" {
		t.Fatalf("restored wrong switch: %#v", info)
	}
	if info.Active == nil || *info.Active != y.MustLookup("L") {
		t.Fatalf("restored switch has wrong active exit: %#v", info)
	}
	// restoring twice doesn't duplicate
	if err := b2.Restore(); err != nil {
		t.Fatalf("Restore: %s", err)
	}
	if n := len(b2.List()); n != 1 {
		t.Fatalf("expected 1 switch, got %d", n)
	}

	if err := b2.Remove(id); err != nil {
		t.Fatalf("Remove: %s", err)
	}
	all, err := m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %s", err)
	}
	if len(all) != 0 {
		t.Fatalf("removed switch still stored: %#v", all)
	}
}
