package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"nyiyui.ca/hato/kirikae/tal"
)

type Config struct {
	// Listen is the address the debug server listens on. Empty disables it.
	Listen string `yaml:"listen"`
	// DBPath is the buntdb database for switches. Empty keeps switches in memory only.
	DBPath string `yaml:"db-path"`
	// Layout is the name of a testbench layout (see layout.Testbenches).
	Layout   string        `yaml:"layout"`
	Tick     time.Duration `yaml:"tick"`
	Resolver Resolver      `yaml:"resolver"`
	Switches []Switch      `yaml:"switches"`
	Trains   []Train       `yaml:"trains"`
}

type Resolver struct {
	StraightThreshold float64 `yaml:"straight-threshold"`
	MaxTurn           float64 `yaml:"max-turn"`
}

func (r Resolver) Conf() tal.ResolverConf {
	return tal.ResolverConf{
		StraightThreshold: r.StraightThreshold,
		MaxTurn:           r.MaxTurn,
	}.WithDefaults()
}

// Switch designates a switch. From and To are node comments in the layout.
type Switch struct {
	ID        string `yaml:"id"`
	Comment   string `yaml:"comment"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	State     string `yaml:"state"`
	Automatic bool   `yaml:"automatic"`
	Locked    bool   `yaml:"locked"`
	Policy    string `yaml:"policy"`
}

// Train places a train that has just moved From→To.
type Train struct {
	Comment     string `yaml:"comment"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Destination string `yaml:"destination"`
}

// Default is the configuration used when no file is given: the loop testbench with one automatic switch and one train.
func Default() Config {
	c := Config{
		Listen: "0.0.0.0:8001",
		Layout: "loop",
		Switches: []Switch{
			{
				ID:        "9a6b1e8e-3c1f-4d43-9d8a-4c9f3f0f5b21",
				Comment:   "sw1",
				From:      "west",
				To:        "sw1",
				Automatic: true,
				Policy:    tal.PolicyRoundRobin,
			},
		},
		Trains: []Train{
			{Comment: "local", From: "sw", To: "west"},
		},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Layout == "" {
		c.Layout = "loop"
	}
	if c.Tick == 0 {
		c.Tick = 500 * time.Millisecond
	}
}

func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Check(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Check validates values that can be checked without a layout.
func (c *Config) Check() error {
	if c.Tick < 0 {
		return fmt.Errorf("tick: negative duration %s", c.Tick)
	}
	if c.Resolver.StraightThreshold < 0 || c.Resolver.MaxTurn < 0 {
		return fmt.Errorf("resolver: negative angle")
	}
	if c.Resolver.MaxTurn > 180 {
		return fmt.Errorf("resolver: max-turn %f over 180°", c.Resolver.MaxTurn)
	}
	for i, s := range c.Switches {
		if s.From == "" || s.To == "" {
			return fmt.Errorf("switch %d (%s): from and to are required", i, s.Comment)
		}
		if s.State != "" {
			if _, err := tal.ParseSwitchState(s.State); err != nil {
				return fmt.Errorf("switch %d (%s): %w", i, s.Comment, err)
			}
		}
	}
	for i, t := range c.Trains {
		if t.From == "" || t.To == "" {
			return fmt.Errorf("train %d (%s): from and to are required", i, t.Comment)
		}
	}
	return nil
}
