package tal

import (
	"fmt"

	"github.com/google/uuid"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

// TraversalContext describes who is asking for an exit.
type TraversalContext struct {
	// Train is uuid.Nil when nobody in particular is asking (e.g. for display).
	Train uuid.UUID
	// Destination, if not nil, is where the train is headed.
	Destination *layout.Node
}

// AutomationPolicy selects the exit of an automatic switch.
// The returned node must be in exits.
type AutomationPolicy interface {
	SelectExit(sp SwitchPoint, exits ExitSet, ctx TraversalContext) (layout.Node, error)
}

// TraversalObserver is implemented by policies that want to know when a train actually passes the switch.
// SelectExit may be called any number of times (e.g. for planning); Traversed is only called on a real traversal.
type TraversalObserver interface {
	Traversed(sp SwitchPoint, exits ExitSet, exit layout.Node)
}

const (
	PolicyRoundRobin  = "round-robin"
	PolicyDestination = "destination"
)

// PathFinder finds rail paths; *layout.Graph implements this.
type PathFinder interface {
	PathFrom(start layout.Edge, goal layout.Node, opts layout.PathOpts) ([]layout.Edge, error)
}

// NewPolicy returns a new policy by name. An empty name is round-robin.
// paths is only used by the destination policy.
func NewPolicy(name string, paths PathFinder, conf ResolverConf) (AutomationPolicy, error) {
	switch name {
	case "", PolicyRoundRobin:
		return &RoundRobin{}, nil
	case PolicyDestination:
		if paths == nil {
			return nil, fmt.Errorf("policy %s needs a topology that can find paths", name)
		}
		return &DestinationPolicy{
			Paths:    paths,
			Fallback: &RoundRobin{},
			MaxTurn:  conf.WithDefaults().MaxTurn,
		}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// RoundRobin selects each exit in turn (in class order), moving on only after a train passes.
type RoundRobin struct {
	pos int
}

func (r *RoundRobin) SelectExit(sp SwitchPoint, exits ExitSet, _ TraversalContext) (layout.Node, error) {
	classes := exits.Classes()
	if len(classes) == 0 {
		return layout.Node{}, &NoExitAvailableError{At: sp.Node()}
	}
	return exits[classes[r.pos%len(classes)]], nil
}

func (r *RoundRobin) Traversed(sp SwitchPoint, exits ExitSet, exit layout.Node) {
	if n := exits.Len(); n > 0 {
		r.pos = (r.pos + 1) % n
	}
}

// DestinationPolicy selects the exit with the shortest path to the train's destination.
// If there is no destination or it can't be reached, Fallback decides.
type DestinationPolicy struct {
	Paths    PathFinder
	Fallback AutomationPolicy
	// MaxTurn is passed to PathFinder.
	MaxTurn float64

	// fellBack is whether Fallback made the last selection, and fallbackExit what it selected.
	fellBack     bool
	fallbackExit layout.Node
}

func (d *DestinationPolicy) SelectExit(sp SwitchPoint, exits ExitSet, ctx TraversalContext) (layout.Node, error) {
	d.fellBack = false
	if exits.Len() == 0 {
		return layout.Node{}, &NoExitAvailableError{At: sp.Node()}
	}
	if ctx.Destination != nil {
		best := -1
		var bestNode layout.Node
		for _, n := range exits.Nodes() {
			path, err := d.Paths.PathFrom(layout.Edge{From: sp.Node(), To: n}, *ctx.Destination, layout.PathOpts{MaxTurn: d.MaxTurn})
			if err != nil {
				continue
			}
			if best == -1 || len(path) < best {
				best, bestNode = len(path), n
			}
		}
		if best != -1 {
			return bestNode, nil
		}
	}
	exit, err := d.Fallback.SelectExit(sp, exits, ctx)
	if err != nil {
		return layout.Node{}, err
	}
	d.fellBack, d.fallbackExit = true, exit
	return exit, nil
}

// Traversed only advances Fallback if Fallback chose exit.
func (d *DestinationPolicy) Traversed(sp SwitchPoint, exits ExitSet, exit layout.Node) {
	if !d.fellBack || d.fallbackExit != exit {
		return
	}
	if o, ok := d.Fallback.(TraversalObserver); ok {
		o.Traversed(sp, exits, exit)
	}
}
