package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/kirikae/tal"
)

const testConfig = `
listen: 127.0.0.1:8001
db-path: switches.db
layout: 3way
tick: 100ms
resolver:
  straight-threshold: 2.5
switches:
  - id: 2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91
    comment: throat
    from: A
    to: B
    state: reverse_left
    locked: true
trains:
  - comment: shunter
    from: A
    to: B
    destination: R
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kirikae.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %s", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	expected := Config{
		Listen:   "127.0.0.1:8001",
		DBPath:   "switches.db",
		Layout:   "3way",
		Tick:     100 * time.Millisecond,
		Resolver: Resolver{StraightThreshold: 2.5},
		Switches: []Switch{{
			ID:      "2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91",
			Comment: "throat",
			From:    "A",
			To:      "B",
			State:   "reverse_left",
			Locked:  true,
		}},
		Trains: []Train{{Comment: "shunter", From: "A", To: "B", Destination: "R"}},
	}
	if !cmp.Equal(c, expected) {
		t.Fatalf("Load diff: %s", cmp.Diff(c, expected))
	}
	rc := c.Resolver.Conf()
	if rc.StraightThreshold != 2.5 || rc.MaxTurn != tal.DefaultResolverConf.MaxTurn {
		t.Fatalf("unexpected resolver conf %#v", rc)
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "listen: ''\n"))
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if c.Layout != "loop" || c.Tick != 500*time.Millisecond {
		t.Fatalf("defaults not applied: %#v", c)
	}
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"state":    "switches:\n  - {from: A, to: B, state: sideways}\n",
		"missing":  "switches:\n  - {from: A}\n",
		"max-turn": "resolver: {max-turn: 270}\n",
		"train":    "trains:\n  - {comment: lost}\n",
		"yaml":     "switches: [",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Check(); err != nil {
		t.Fatalf("default config invalid: %s", err)
	}
}
