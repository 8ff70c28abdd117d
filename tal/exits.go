package tal

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

// Topology is the part of a rail graph the resolver reads.
type Topology interface {
	LocateNode(n layout.Node) (layout.Node, error)
	OutgoingEdges(n layout.Node) []layout.Edge
	IsEdgeEnabled(e layout.Edge) bool
	// Version must change whenever the topology changes.
	Version() uint64
}

// EdgeSwitcher is implemented by topologies whose edges can be enabled and disabled.
type EdgeSwitcher interface {
	SetEdgeEnabled(from, to layout.Node, enabled bool) error
}

// ExitClass is which way an exit leaves a switch, relative to the incoming edge.
type ExitClass int

const (
	ExitStraight ExitClass = 1
	ExitLeft     ExitClass = 2
	ExitRight    ExitClass = 3
)

var exitClasses = []ExitClass{ExitStraight, ExitLeft, ExitRight}

func (c ExitClass) String() string {
	switch c {
	case ExitStraight:
		return "straight"
	case ExitLeft:
		return "left"
	case ExitRight:
		return "right"
	default:
		return fmt.Sprintf("%d", int(c))
	}
}

func (c ExitClass) MarshalText() ([]byte, error) {
	switch c {
	case ExitStraight, ExitLeft, ExitRight:
		return []byte(c.String()), nil
	}
	return nil, fmt.Errorf("invalid exit class %d", int(c))
}

func (c *ExitClass) UnmarshalText(text []byte) error {
	for _, c2 := range exitClasses {
		if c2.String() == string(text) {
			*c = c2
			return nil
		}
	}
	return fmt.Errorf("invalid exit class %q", text)
}

// SwitchPoint is a node reached via an incoming edge.
type SwitchPoint struct {
	Incoming layout.Edge
}

// Node is the node where the exits diverge.
func (sp SwitchPoint) Node() layout.Node {
	return sp.Incoming.To
}

func (sp SwitchPoint) String() string {
	return fmt.Sprintf("switch-point(%s)", sp.Incoming)
}

// ExitSet maps each present exit class to its destination node.
type ExitSet map[ExitClass]layout.Node

func (es ExitSet) Has(c ExitClass) bool {
	_, ok := es[c]
	return ok
}

func (es ExitSet) Len() int { return len(es) }

// Classes returns the present classes in the order straight, left, right.
func (es ExitSet) Classes() []ExitClass {
	classes := make([]ExitClass, 0, len(es))
	for _, c := range exitClasses {
		if es.Has(c) {
			classes = append(classes, c)
		}
	}
	return classes
}

// Nodes returns the destinations in class order.
func (es ExitSet) Nodes() []layout.Node {
	nodes := make([]layout.Node, 0, len(es))
	for _, c := range es.Classes() {
		nodes = append(nodes, es[c])
	}
	return nodes
}

func (es ExitSet) Contains(n layout.Node) bool {
	_, ok := es.ClassOf(n)
	return ok
}

func (es ExitSet) ClassOf(n layout.Node) (ExitClass, bool) {
	for c, n2 := range es {
		if n2 == n {
			return c, true
		}
	}
	return 0, false
}

func (es ExitSet) Clone() ExitSet {
	es2 := make(ExitSet, len(es))
	for c, n := range es {
		es2[c] = n
	}
	return es2
}

// ResolverConf has the angles (in degrees) used to classify exits.
type ResolverConf struct {
	// StraightThreshold is the largest turn still counted as straight.
	StraightThreshold float64
	// MaxTurn is the largest turn counted as an exit. Sharper turns are turnbacks and are ignored.
	MaxTurn float64
}

var DefaultResolverConf = ResolverConf{
	StraightThreshold: 5,
	MaxTurn:           135,
}

// WithDefaults returns rc with zero fields replaced by DefaultResolverConf's.
func (rc ResolverConf) WithDefaults() ResolverConf {
	if rc.StraightThreshold == 0 {
		rc.StraightThreshold = DefaultResolverConf.StraightThreshold
	}
	if rc.MaxTurn == 0 {
		rc.MaxTurn = DefaultResolverConf.MaxTurn
	}
	return rc
}

func (rc ResolverConf) classify(delta float64) ExitClass {
	switch {
	case math.Abs(delta) <= rc.StraightThreshold:
		return ExitStraight
	case delta < 0:
		return ExitLeft
	default:
		return ExitRight
	}
}

// Exit is a single candidate exit from a switch point.
type Exit struct {
	Class ExitClass
	Edge  layout.Edge
	// Delta is the turn from the incoming edge in degrees; positive is to the right.
	Delta float64
}

// ClassifyExits returns every candidate exit from sp, straightest first.
// Several candidates may have the same class.
func ClassifyExits(topo Topology, sp SwitchPoint, conf ResolverConf) ([]Exit, error) {
	in := sp.Incoming
	from, err := topo.LocateNode(in.From)
	if err != nil {
		return nil, &StaleReferenceError{Edge: in, Err: err}
	}
	at, err := topo.LocateNode(in.To)
	if err != nil {
		return nil, &StaleReferenceError{Edge: in, Err: err}
	}
	found := false
	for _, e := range topo.OutgoingEdges(from) {
		if e.To == at {
			found = true
			break
		}
	}
	if !found {
		return nil, &StaleReferenceError{Edge: in}
	}
	inBearing, ok := in.Bearing()
	if !ok {
		return nil, fmt.Errorf("%s: %w", sp, ErrNoBearing)
	}

	exits := []Exit{}
	for _, e := range topo.OutgoingEdges(at) {
		if e.Same(in) || e.To == e.From {
			continue
		}
		// edges with reversed nodes, i.e. (a, b) and (b, a)
		if e.Same(in.Reverse()) {
			continue
		}
		bearing, ok := e.Bearing()
		if !ok {
			continue
		}
		delta := layout.BearingDelta(inBearing, bearing)
		if math.Abs(delta) > conf.MaxTurn {
			continue
		}
		exits = append(exits, Exit{
			Class: conf.classify(delta),
			Edge:  e,
			Delta: delta,
		})
	}
	sort.SliceStable(exits, func(i, j int) bool {
		di, dj := math.Abs(exits[i].Delta), math.Abs(exits[j].Delta)
		if di != dj {
			return di < dj
		}
		return exits[i].Edge.To.Less(exits[j].Edge.To)
	})
	return exits, nil
}

// ResolveExits returns the exits from sp, keyed by class.
// If several candidates have the same class, the straightest one is used.
func ResolveExits(topo Topology, sp SwitchPoint, conf ResolverConf) (ExitSet, error) {
	exits, err := ClassifyExits(topo, sp, conf)
	if err != nil {
		return nil, err
	}
	es := ExitSet{}
	for _, e := range exits {
		if prev, ok := es[e.Class]; ok {
			zap.S().Debugw("exit shadowed",
				"point", sp,
				"class", e.Class,
				"kept", prev,
				"shadowed", e.Edge.To)
			continue
		}
		es[e.Class] = e.Edge.To
	}
	return es, nil
}
