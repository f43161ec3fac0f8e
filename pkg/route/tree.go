package route

import (
	"sort"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// Tree is a node of a route tree. The root has a nil Conn; every other node
// records the connection that reached it from its parent. Children are
// unique per target wire.
type Tree struct {
	Wire device.Wire
	Conn *device.WireConnection
	// Clock is the spine distance when the node was reached by a clock hop.
	Clock    int
	Terminal bool

	parent   *Tree
	children []*Tree
	index    map[device.Wire]*Tree
}

// NewTree creates a root node.
func NewTree(w device.Wire) *Tree {
	return &Tree{Wire: w}
}

// AddConnection returns the child reached through c, creating it when this
// node has no child for c's target yet.
func (t *Tree) AddConnection(c device.WireConnection) *Tree {
	to := t.Wire.Follow(c)
	if child, ok := t.index[to]; ok {
		return child
	}
	child := &Tree{Wire: to, Conn: &c, parent: t}
	if t.index == nil {
		t.index = make(map[device.Wire]*Tree)
	}
	t.index[to] = child
	t.children = append(t.children, child)
	return child
}

func (t *Tree) addClockHop(c device.WireConnection, distance int) *Tree {
	child := t.AddConnection(c)
	if child.Clock == 0 {
		child.Clock = distance
	}
	return child
}

// Parent returns the parent node, or nil at the root.
func (t *Tree) Parent() *Tree {
	return t.parent
}

// Root returns the root of the tree containing t.
func (t *Tree) Root() *Tree {
	for t.parent != nil {
		t = t.parent
	}
	return t
}

// Children returns the child nodes in insertion order.
func (t *Tree) Children() []*Tree {
	return t.children
}

// Child returns the child for wire w.
func (t *Tree) Child(w device.Wire) (*Tree, bool) {
	c, ok := t.index[w]
	return c, ok
}

// IsLeaf reports whether t has no children.
func (t *Tree) IsLeaf() bool {
	return len(t.children) == 0
}

// PathToRoot returns t, its parent, and so on up to the root.
func (t *Tree) PathToRoot() []*Tree {
	var path []*Tree
	for n := t; n != nil; n = n.parent {
		path = append(path, n)
	}
	return path
}

// OnPath reports whether w appears between t and the root, t included.
func (t *Tree) OnPath(w device.Wire) bool {
	for n := t; n != nil; n = n.parent {
		if n.Wire == w {
			return true
		}
	}
	return false
}

// Walk visits the subtree depth-first in pre-order. Returning false from fn
// skips the children of that node.
func (t *Tree) Walk(fn func(*Tree) bool) {
	if !fn(t) {
		return
	}
	for _, c := range t.children {
		c.Walk(fn)
	}
}

// Leaves returns the leaf nodes of the subtree.
func (t *Tree) Leaves() []*Tree {
	var leaves []*Tree
	t.Walk(func(n *Tree) bool {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// Len returns the number of nodes in the subtree.
func (t *Tree) Len() int {
	n := 0
	t.Walk(func(*Tree) bool {
		n++
		return true
	})
	return n
}

// Contains reports whether the subtree holds wire w.
func (t *Tree) Contains(w device.Wire) bool {
	found := false
	t.Walk(func(n *Tree) bool {
		if n.Wire == w {
			found = true
		}
		return !found
	})
	return found
}

// Terminals returns the wires of all nodes marked Terminal.
func (t *Tree) Terminals() map[device.Wire]bool {
	set := make(map[device.Wire]bool)
	t.Walk(func(n *Tree) bool {
		if n.Terminal {
			set[n.Wire] = true
		}
		return true
	})
	return set
}

// Prune removes every leaf whose wire is not in terminals, repeating until
// all leaves are terminals. The root is never removed. It returns the number
// of removed nodes.
func (t *Tree) Prune(terminals map[device.Wire]bool) int {
	removed := 0
	kept := t.children[:0]
	for _, c := range t.children {
		removed += c.Prune(terminals)
		if c.IsLeaf() && !terminals[c.Wire] {
			delete(t.index, c.Wire)
			c.parent = nil
			removed++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(t.children); i++ {
		t.children[i] = nil
	}
	t.children = kept
	return removed
}

// Edge is one parent-to-child step of a tree.
type Edge struct {
	From  device.Wire
	To    device.Wire
	PIP   bool
	Clock int
}

// Edges returns every edge of the subtree in a canonical order, so two trees
// with the same shape compare equal regardless of branch order.
func (t *Tree) Edges() []Edge {
	var edges []Edge
	t.Walk(func(n *Tree) bool {
		for _, c := range n.children {
			edges = append(edges, Edge{From: n.Wire, To: c.Wire, PIP: c.Conn.PIP, Clock: c.Clock})
		}
		return true
	})
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return wireLess(a.From, b.From)
		}
		return wireLess(a.To, b.To)
	})
	return edges
}

func wireLess(a, b device.Wire) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	if a.Column != b.Column {
		return a.Column < b.Column
	}
	return a.ID < b.ID
}
