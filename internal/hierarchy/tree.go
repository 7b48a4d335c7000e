package hierarchy

// NodeID is a stable handle into the tree arena. Handles of nodes that
// survive a reconciliation pass never change.
type NodeID int

// NoNode is returned when a lookup finds nothing
const NoNode NodeID = -1

// Node is a read-only copy of a tree entry
type Node struct {
	ID         int
	Name       string
	Role       Role
	Icon       IconKind
	Generation uint64
	Parent     NodeID
	Children   []NodeID
}

// IsRoot reports whether the node sits at the top level
func (n Node) IsRoot() bool {
	return n.Parent == NoNode
}

// IsUnassigned reports whether the node is the synthetic floating root
func (n Node) IsUnassigned() bool {
	return n.ID == UnassignedID && n.Parent == NoNode
}

type node struct {
	live       bool
	id         int
	name       string
	role       Role
	icon       IconKind
	generation uint64
	parent     NodeID
	children   []NodeID
	childIndex map[int]NodeID
}

// Tree is the persistent forest of master roots, each owning its slaves,
// plus the Unassigned root. Nodes live in an arena and reference each other
// by handle.
type Tree struct {
	nodes     []node
	free      []NodeID
	roots     []NodeID
	rootIndex map[int]NodeID
}

// NewTree returns an empty tree
func NewTree() *Tree {
	return &Tree{rootIndex: make(map[int]NodeID)}
}

// Roots returns the root handles in display order
func (t *Tree) Roots() []NodeID {
	out := make([]NodeID, len(t.roots))
	copy(out, t.roots)
	return out
}

// Children returns the child handles of h in insertion order
func (t *Tree) Children(h NodeID) []NodeID {
	n := t.get(h)
	if n == nil {
		return nil
	}
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out
}

// Node returns a copy of the node behind h
func (t *Tree) Node(h NodeID) (Node, bool) {
	n := t.get(h)
	if n == nil {
		return Node{}, false
	}
	return Node{
		ID:         n.id,
		Name:       n.name,
		Role:       n.role,
		Icon:       n.icon,
		Generation: n.generation,
		Parent:     n.parent,
		Children:   t.Children(h),
	}, true
}

// Root returns the root whose device id is id
func (t *Tree) Root(id int) (NodeID, bool) {
	h, ok := t.rootIndex[id]
	return h, ok
}

// Unassigned returns the handle of the synthetic floating root, if present
func (t *Tree) Unassigned() (NodeID, bool) {
	return t.Root(UnassignedID)
}

// Lookup finds a node by device id. Roots are searched before slaves.
func (t *Tree) Lookup(id int) (NodeID, bool) {
	if id != UnassignedID {
		if h, ok := t.rootIndex[id]; ok {
			return h, true
		}
	}
	for _, r := range t.roots {
		if h, ok := t.nodes[r].childIndex[id]; ok {
			return h, true
		}
	}
	return NoNode, false
}

// Len returns the number of live nodes
func (t *Tree) Len() int {
	return len(t.nodes) - len(t.free)
}

// Walk visits every node depth-first in display order. Returning false from
// fn stops the walk.
func (t *Tree) Walk(fn func(h NodeID, n Node, depth int) bool) {
	for _, r := range t.roots {
		rn, _ := t.Node(r)
		if !fn(r, rn, 0) {
			return
		}
		for _, c := range t.nodes[r].children {
			cn, _ := t.Node(c)
			if !fn(c, cn, 1) {
				return
			}
		}
	}
}

func (t *Tree) get(h NodeID) *node {
	if h < 0 || int(h) >= len(t.nodes) || !t.nodes[h].live {
		return nil
	}
	return &t.nodes[h]
}

func (t *Tree) alloc(n node) NodeID {
	n.live = true
	if k := len(t.free); k > 0 {
		h := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[h] = n
		return h
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) release(h NodeID) {
	n := t.get(h)
	if n == nil {
		return
	}
	for _, c := range n.children {
		t.release(c)
	}
	t.nodes[h] = node{}
	t.free = append(t.free, h)
}

func (t *Tree) appendRoot(d Device, icon IconKind, gen uint64) NodeID {
	h := t.alloc(node{
		id:         d.ID,
		name:       d.Name,
		role:       d.Role,
		icon:       icon,
		generation: gen,
		parent:     NoNode,
		childIndex: make(map[int]NodeID),
	})
	t.roots = append(t.roots, h)
	t.rootIndex[d.ID] = h
	return h
}

func (t *Tree) appendChild(parent NodeID, d Device, gen uint64) NodeID {
	h := t.alloc(node{
		id:         d.ID,
		name:       d.Name,
		role:       d.Role,
		icon:       iconFor(d.Role),
		generation: gen,
		parent:     parent,
	})
	p := &t.nodes[parent]
	p.children = append(p.children, h)
	p.childIndex[d.ID] = h
	return h
}

func (t *Tree) child(parent NodeID, id int) (NodeID, bool) {
	p := t.get(parent)
	if p == nil {
		return NoNode, false
	}
	h, ok := p.childIndex[id]
	return h, ok
}

func (t *Tree) stamp(h NodeID, gen uint64) {
	t.nodes[h].generation = gen
}

// moveAfterLast relocates root h behind every other root
func (t *Tree) moveAfterLast(h NodeID) {
	for i, r := range t.roots {
		if r == h {
			t.roots = append(t.roots[:i], t.roots[i+1:]...)
			break
		}
	}
	t.roots = append(t.roots, h)
}

// removeChild drops h from its parent and returns it to the free list
func (t *Tree) removeChild(h NodeID) {
	n := t.get(h)
	if n == nil {
		return
	}
	p := &t.nodes[n.parent]
	for i, c := range p.children {
		if c == h {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	if p.childIndex[n.id] == h {
		delete(p.childIndex, n.id)
	}
	t.release(h)
}

// removeRoot drops root h together with its remaining children. It returns
// the number of nodes freed.
func (t *Tree) removeRoot(h NodeID) int {
	n := t.get(h)
	if n == nil {
		return 0
	}
	freed := 1 + len(n.children)
	for i, r := range t.roots {
		if r == h {
			t.roots = append(t.roots[:i], t.roots[i+1:]...)
			break
		}
	}
	if t.rootIndex[n.id] == h {
		delete(t.rootIndex, n.id)
	}
	t.release(h)
	return freed
}
