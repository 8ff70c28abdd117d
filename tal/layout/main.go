package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Node is a location in the rail graph. Two nodes are the same node iff they are equal.
type Node struct {
	Dimension string `json:"dim,omitempty"`
	// X, Y, and Z in µm. X and Z are horizontal (north is -Z, east is +X), Y is height.
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

func (n Node) String() string {
	if n.Dimension == "" {
		return fmt.Sprintf("(%d,%d,%d)", n.X, n.Y, n.Z)
	}
	return fmt.Sprintf("%s(%d,%d,%d)", n.Dimension, n.X, n.Y, n.Z)
}

// Less orders nodes by dimension, then X, Z, and Y.
func (n Node) Less(o Node) bool {
	if n.Dimension != o.Dimension {
		return n.Dimension < o.Dimension
	}
	if n.X != o.X {
		return n.X < o.X
	}
	if n.Z != o.Z {
		return n.Z < o.Z
	}
	return n.Y < o.Y
}

// Material is the kind of track an edge is made of. It does not affect routing.
type Material string

const (
	MaterialStandard Material = "standard"
	MaterialMonorail Material = "monorail"
)

// Edge is a directed connection between two nodes.
type Edge struct {
	From     Node     `json:"from"`
	To       Node     `json:"to"`
	Material Material `json:"material,omitempty"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s→%s", e.From, e.To)
}

// Reverse returns the edge going the other way.
func (e Edge) Reverse() Edge {
	return Edge{From: e.To, To: e.From, Material: e.Material}
}

// Same reports whether e and o connect the same nodes in the same direction, ignoring material.
func (e Edge) Same(o Edge) bool {
	return e.From == o.From && e.To == o.To
}

// NodeNotFoundError is returned when a node is not (or no longer) in the graph.
type NodeNotFoundError struct {
	Node Node
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %s not found", e.Node)
}

var ErrSelfLoop = errors.New("edge from a node to itself")

type edgeData struct {
	material Material
	enabled  bool
}

// Graph is a directed rail graph.
// Topology edits (nodes and edges) bump Version; toggling whether an edge is enabled does not.
type Graph struct {
	lock    sync.RWMutex
	edges   map[Node]map[Node]*edgeData
	version uint64
}

func NewGraph() *Graph {
	return &Graph{edges: map[Node]map[Node]*edgeData{}}
}

// Version is incremented on every topology edit.
func (g *Graph) Version() uint64 {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.version
}

func (g *Graph) AddNode(n Node) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, ok := g.edges[n]; ok {
		return
	}
	g.edges[n] = map[Node]*edgeData{}
	g.version++
}

// RemoveNode removes n and all edges to and from n.
func (g *Graph) RemoveNode(n Node) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, ok := g.edges[n]; !ok {
		return &NodeNotFoundError{Node: n}
	}
	delete(g.edges, n)
	for _, out := range g.edges {
		delete(out, n)
	}
	g.version++
	return nil
}

// AddEdge adds an enabled edge from from to to, adding the nodes if needed.
// Adding an existing edge replaces its material.
func (g *Graph) AddEdge(from, to Node, m Material) error {
	if from == to {
		return fmt.Errorf("%s: %w", from, ErrSelfLoop)
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	g.addEdge(from, to, m)
	g.version++
	return nil
}

func (g *Graph) addEdge(from, to Node, m Material) {
	if _, ok := g.edges[to]; !ok {
		g.edges[to] = map[Node]*edgeData{}
	}
	out, ok := g.edges[from]
	if !ok {
		out = map[Node]*edgeData{}
		g.edges[from] = out
	}
	out[to] = &edgeData{material: m, enabled: true}
}

// Connect adds edges in both directions between a and b.
func (g *Graph) Connect(a, b Node, m Material) error {
	if a == b {
		return fmt.Errorf("%s: %w", a, ErrSelfLoop)
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	g.addEdge(a, b, m)
	g.addEdge(b, a, m)
	g.version++
	return nil
}

// MustConnect is Connect but it panics on error.
// This is for building fixed layouts.
func (g *Graph) MustConnect(a, b Node, m Material) {
	if err := g.Connect(a, b, m); err != nil {
		panic(err)
	}
}

func (g *Graph) RemoveEdge(from, to Node) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	out, ok := g.edges[from]
	if !ok {
		return &NodeNotFoundError{Node: from}
	}
	if _, ok := out[to]; !ok {
		return fmt.Errorf("edge %s→%s not found", from, to)
	}
	delete(out, to)
	g.version++
	return nil
}

// LocateNode returns n if it exists in the graph.
func (g *Graph) LocateNode(n Node) (Node, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	if _, ok := g.edges[n]; !ok {
		return Node{}, &NodeNotFoundError{Node: n}
	}
	return n, nil
}

// MustLocate is LocateNode but it panics if n doesn't exist.
// This is for debugging/testing.
func (g *Graph) MustLocate(n Node) Node {
	n, err := g.LocateNode(n)
	if err != nil {
		panic(err)
	}
	return n
}

// Nodes returns all nodes, sorted.
func (g *Graph) Nodes() []Node {
	g.lock.RLock()
	defer g.lock.RUnlock()
	nodes := make([]Node, 0, len(g.edges))
	for n := range g.edges {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Less(nodes[j]) })
	return nodes
}

// OutgoingEdges returns all edges from n, sorted by destination.
// A node not in the graph has no outgoing edges.
func (g *Graph) OutgoingEdges(n Node) []Edge {
	g.lock.RLock()
	defer g.lock.RUnlock()
	out := g.edges[n]
	edges := make([]Edge, 0, len(out))
	for to, d := range out {
		edges = append(edges, Edge{From: n, To: to, Material: d.material})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To.Less(edges[j].To) })
	return edges
}

// HasEdge reports whether the edge from from to to exists.
func (g *Graph) HasEdge(from, to Node) bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	_, ok := g.edges[from][to]
	return ok
}

// IsEdgeEnabled reports whether e may currently be traversed. Edges not in the graph are not enabled.
func (g *Graph) IsEdgeEnabled(e Edge) bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	d, ok := g.edges[e.From][e.To]
	return ok && d.enabled
}

// SetEdgeEnabled sets whether the edge from from to to may be traversed.
func (g *Graph) SetEdgeEnabled(from, to Node, enabled bool) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	d, ok := g.edges[from][to]
	if !ok {
		return fmt.Errorf("edge %s→%s not found", from, to)
	}
	d.enabled = enabled
	return nil
}

func (g *Graph) String() string {
	b := new(strings.Builder)
	for _, n := range g.Nodes() {
		fmt.Fprintf(b, "%s:", n)
		for _, e := range g.OutgoingEdges(n) {
			if g.IsEdgeEnabled(e) {
				fmt.Fprintf(b, " %s", e.To)
			} else {
				fmt.Fprintf(b, " !%s", e.To)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
