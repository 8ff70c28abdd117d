package layout

import "fmt"

// Block is the length of one grid unit in µm.
const Block = 1_000_000

// Layout is a Graph with human-readable names for some of its nodes.
type Layout struct {
	*Graph
	comments map[string]Node
}

func NewLayout() *Layout {
	return &Layout{Graph: NewGraph(), comments: map[string]Node{}}
}

// Name adds a node with a comment.
func (y *Layout) Name(comment string, x, z int64) Node {
	n := Node{X: x * Block, Z: z * Block}
	y.comments[comment] = n
	y.AddNode(n)
	return n
}

// Lookup finds a node with a matching comment.
func (y *Layout) Lookup(comment string) (Node, bool) {
	n, ok := y.comments[comment]
	return n, ok
}

// MustLookup finds a node with a matching comment. If it doesn't it panics.
// This is for debugging/testing.
func (y *Layout) MustLookup(comment string) Node {
	n, ok := y.Lookup(comment)
	if !ok {
		panic(fmt.Sprintf("found nothing when looking up for %s", comment))
	}
	return n
}

// Comment returns the comment of n, or n formatted if it has none.
func (y *Layout) Comment(n Node) string {
	for c, n2 := range y.comments {
		if n2 == n {
			return c
		}
	}
	return n.String()
}

// LookupEdge returns the edge between two commented nodes.
func (y *Layout) LookupEdge(from, to string) (Edge, error) {
	f, ok := y.Lookup(from)
	if !ok {
		return Edge{}, fmt.Errorf("no node named %s", from)
	}
	t, ok := y.Lookup(to)
	if !ok {
		return Edge{}, fmt.Errorf("no node named %s", to)
	}
	for _, e := range y.OutgoingEdges(f) {
		if e.To == t {
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("no edge %s→%s", from, to)
}

// MustEdge is LookupEdge but panics on error.
func (y *Layout) MustEdge(from, to string) Edge {
	e, err := y.LookupEdge(from, to)
	if err != nil {
		panic(err)
	}
	return e
}

// InitTestbench2Way is a left-hand turnout approached from the south:
//
//	L2  S2
//	 \   |
//	  L  S
//	   \ |
//	     B
//	     |
//	     A
func InitTestbench2Way() (*Layout, error) {
	y := NewLayout()
	a := y.Name("A", 0, 10)
	b := y.Name("B", 0, 0)
	s := y.Name("S", 0, -10)
	l := y.Name("L", -4, -10)
	s2 := y.Name("S2", 0, -20)
	l2 := y.Name("L2", -8, -20)
	for _, pair := range [][2]Node{{a, b}, {b, s}, {b, l}, {s, s2}, {l, l2}} {
		if err := y.Connect(pair[0], pair[1], MaterialStandard); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// InitTestbench3Way is a 3-way turnout approached from the south.
func InitTestbench3Way() (*Layout, error) {
	y := NewLayout()
	a := y.Name("A", 0, 10)
	b := y.Name("B", 0, 0)
	s := y.Name("S", 0, -10)
	l := y.Name("L", -4, -10)
	r := y.Name("R", 4, -10)
	for _, pair := range [][2]Node{{a, b}, {b, s}, {b, l}, {b, r}} {
		if err := y.Connect(pair[0], pair[1], MaterialStandard); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// InitTestbenchWye is a wye (left and right, no straight) approached from the south.
func InitTestbenchWye() (*Layout, error) {
	y := NewLayout()
	a := y.Name("A", 0, 10)
	b := y.Name("B", 0, 0)
	l := y.Name("L", -6, -10)
	r := y.Name("R", 6, -10)
	for _, pair := range [][2]Node{{a, b}, {b, l}, {b, r}} {
		if err := y.Connect(pair[0], pair[1], MaterialMonorail); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// InitTestbenchLoop is an oval with a passing siding.
// A train heading east from "west" reaches the turnout "sw1", which leads either to "main" or to "siding";
// both rejoin at "join" and the oval continues back to "west".
func InitTestbenchLoop() (*Layout, error) {
	y := NewLayout()
	west := y.Name("west", 0, 0)
	sw1 := y.Name("sw1", 10, 0)
	main := y.Name("main", 20, 0)
	siding := y.Name("siding", 20, 4)
	join := y.Name("join", 30, 0)
	east := y.Name("east", 40, 0)
	se := y.Name("se", 40, 20)
	sw := y.Name("sw", 0, 20)
	for _, pair := range [][2]Node{
		{west, sw1},
		{sw1, main},
		{sw1, siding},
		{main, join},
		{siding, join},
		{join, east},
		{east, se},
		{se, sw},
		{sw, west},
	} {
		if err := y.Connect(pair[0], pair[1], MaterialStandard); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// Testbenches are the hardcoded layouts, by name.
var Testbenches = map[string]func() (*Layout, error){
	"2way": InitTestbench2Way,
	"3way": InitTestbench3Way,
	"wye":  InitTestbenchWye,
	"loop": InitTestbenchLoop,
}

// InitTestbench returns the testbench layout called name.
func InitTestbench(name string) (*Layout, error) {
	init, ok := Testbenches[name]
	if !ok {
		return nil, fmt.Errorf("unknown testbench %q", name)
	}
	return init()
}
