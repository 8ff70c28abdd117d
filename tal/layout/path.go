package layout

import (
	"errors"
	"math"
)

var ErrNoPath = errors.New("no path")

// PathTo returns the edges to follow from from to goal, in order, using only enabled edges.
// Trains may turn back at any node.
func (g *Graph) PathTo(from, goal Node) ([]Edge, error) {
	if _, err := g.LocateNode(from); err != nil {
		return nil, err
	}
	if _, err := g.LocateNode(goal); err != nil {
		return nil, err
	}
	if from == goal {
		return nil, nil
	}
	using := map[Node]Edge{}
	visited := map[Node]bool{from: true}
	queue := []Node{from}
	for len(queue) > 0 {
		var current Node
		current, queue = queue[0], queue[1:]
		for _, e := range g.OutgoingEdges(current) {
			if visited[e.To] || !g.IsEdgeEnabled(e) {
				continue
			}
			visited[e.To] = true
			using[e.To] = e
			queue = append(queue, e.To)
		}
		if visited[goal] {
			break
		}
	}
	if !visited[goal] {
		return nil, ErrNoPath
	}
	var path []Edge
	for n := goal; n != from; n = using[n].From {
		path = append(path, using[n])
	}
	reverse(path)
	return path, nil
}

// PathOpts restricts the paths PathFrom may return.
type PathOpts struct {
	// EnabledOnly skips disabled edges after the start edge.
	EnabledOnly bool
	// MaxTurn is the sharpest turn (in degrees) allowed at a node. Zero means no limit.
	MaxTurn float64
}

// PathFrom returns the edges to follow to reach goal after traversing start (start is the first edge returned).
// Unlike PathTo, the path never turns back on itself at a node.
func (g *Graph) PathFrom(start Edge, goal Node, opts PathOpts) ([]Edge, error) {
	if !g.HasEdge(start.From, start.To) {
		return nil, errors.New("start edge not in graph")
	}
	if start.To == goal {
		return []Edge{start}, nil
	}
	type key struct{ from, to Node }
	using := map[key]Edge{}
	visited := map[key]bool{{start.From, start.To}: true}
	queue := []Edge{start}
	var last *Edge
	for len(queue) > 0 && last == nil {
		var current Edge
		current, queue = queue[0], queue[1:]
		for _, e := range g.OutgoingEdges(current.To) {
			k := key{e.From, e.To}
			if e.To == current.From || visited[k] {
				continue
			}
			if opts.EnabledOnly && !g.IsEdgeEnabled(e) {
				continue
			}
			if opts.MaxTurn != 0 && !withinTurn(current, e, opts.MaxTurn) {
				continue
			}
			visited[k] = true
			using[k] = current
			queue = append(queue, e)
			if e.To == goal {
				e := e
				last = &e
				break
			}
		}
	}
	if last == nil {
		return nil, ErrNoPath
	}
	path := []Edge{*last}
	for e := *last; !e.Same(start); {
		e = using[key{e.From, e.To}]
		path = append(path, e)
	}
	reverse(path)
	return path, nil
}

func withinTurn(a, b Edge, maxTurn float64) bool {
	ab, ok := a.Bearing()
	if !ok {
		return true
	}
	bb, ok := b.Bearing()
	if !ok {
		return true
	}
	return math.Abs(BearingDelta(ab, bb)) <= maxTurn
}

func reverse[S ~[]E, E any](s S) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Bearing returns the compass bearing of e in degrees, clockwise from north, in (-180, 180].
// ok is false if e has no horizontal extent.
func (e Edge) Bearing() (deg float64, ok bool) {
	dx := float64(e.To.X - e.From.X)
	dz := float64(e.To.Z - e.From.Z)
	if dx == 0 && dz == 0 {
		return 0, false
	}
	return math.Atan2(dx, -dz) * 180 / math.Pi, true
}

// Length returns the horizontal length of e in µm.
func (e Edge) Length() float64 {
	dx := float64(e.To.X - e.From.X)
	dz := float64(e.To.Z - e.From.Z)
	return math.Hypot(dx, dz)
}

// BearingDelta returns how much b turns relative to a, in (-180, 180]. Positive is clockwise (to the right).
func BearingDelta(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}
