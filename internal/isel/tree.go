// Package isel partitions a definition into single-output trees and tiles
// each tree with target patterns at minimum total latency.
package isel

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

// Inf is the cost of a node no pattern covers.
const Inf = math.MaxUint64

// NodeKind separates tree leaves from operations.
type NodeKind int

const (
	NodeInput NodeKind = iota
	NodeWire
	NodeComp
)

// Node is a value in a tree. Input leaves stand for signature inputs and
// for values computed by another tree.
type Node struct {
	Index     int
	ID        string
	Ty        ir.Ty
	Kind      NodeKind
	Op        string
	Attr      ir.Expr
	Prim      ir.Prim
	Cost      uint64
	Committed bool
	Pat       string
	PatPrim   ir.Prim

	instr ir.Instr
}

func (n *Node) String() string {
	switch n.Kind {
	case NodeInput:
		return fmt.Sprintf("%s:%s", n.ID, n.Ty)
	case NodeWire:
		return fmt.Sprintf("%s:%s = %s%s", n.ID, n.Ty, n.Op, ir.AttrString(n.Attr))
	}
	return fmt.Sprintf("%s:%s = %s%s @%s", n.ID, n.Ty, n.Op, ir.AttrString(n.Attr), n.Prim)
}

// Tree is an index-keyed tree; Edges lists children in operand order.
type Tree struct {
	counter int
	Nodes   map[int]*Node
	Edges   map[int][]int
	Root    int

	matches map[int]*match
}

func NewTree() *Tree {
	return &Tree{Nodes: make(map[int]*Node), Edges: make(map[int][]int)}
}

// AddNode assigns the next index to n and returns it.
func (t *Tree) AddNode(n *Node) int {
	n.Index = t.counter
	t.Nodes[n.Index] = n
	t.counter++
	return n.Index
}

func (t *Tree) AddEdge(from, to int) {
	t.Edges[from] = append(t.Edges[from], to)
}

func (t *Tree) Children(i int) []int { return t.Edges[i] }

func (t *Tree) Len() int { return len(t.Nodes) }

// PostOrder lists node indices children first, starting at the root.
func (t *Tree) PostOrder() []int {
	var order []int
	type frame struct {
		node int
		next int
	}
	stack := []frame{{node: t.Root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := t.Edges[top.node]
		if top.next < len(children) {
			child := children[top.next]
			top.next++
			stack = append(stack, frame{node: child})
			continue
		}
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}
	return order
}

// Forest is the partition of a definition.
type Forest struct {
	Visited *set.Set[string]
	Trees   []*Tree
}

// Partition splits def into maximal trees rooted at outputs and at compute
// values used more than once. Wires are copied into every consuming tree.
func Partition(def *ir.Def) (*Forest, error) {
	producers := def.Producers()
	env := def.Env()

	uses := make(map[string]int)
	for _, instr := range def.Body {
		for _, t := range instr.Args().Terms {
			if t.IsVar() {
				uses[t.ID]++
			}
		}
	}

	var roots []string
	rootSet := set.New[string](0)
	for _, t := range def.Sig.Output.Terms {
		if rootSet.Insert(t.ID) {
			roots = append(roots, t.ID)
		}
	}
	for _, instr := range def.Body {
		if _, ok := instr.(*ir.InstrComp); !ok {
			continue
		}
		for _, t := range instr.Dests().Terms {
			if uses[t.ID] > 1 && rootSet.Insert(t.ID) {
				roots = append(roots, t.ID)
			}
		}
	}

	f := &Forest{Visited: set.New[string](len(def.Body))}
	b := &treeBuilder{producers: producers, env: env}
	for _, id := range roots {
		f.Visited.Insert(id)
		b.isLeaf = func(id string) bool {
			return rootSet.Contains(id) || f.Visited.Contains(id)
		}
		b.visit = func(id string) { f.Visited.Insert(id) }
		tree, err := b.build(id)
		if err != nil {
			return nil, err
		}
		f.Trees = append(f.Trees, tree)
	}
	return f, nil
}

// treeBuilder grows a tree from a root by depth-first search over operands.
type treeBuilder struct {
	producers map[string]ir.Instr
	env       map[string]ir.Ty
	isLeaf    func(id string) bool
	visit     func(id string)
}

func (b *treeBuilder) build(rootID string) (*Tree, error) {
	tree := NewTree()
	root, err := b.node(rootID, true)
	if err != nil {
		return nil, err
	}
	tree.Root = tree.AddNode(root)

	type item struct {
		index int
		wires *set.Set[string]
	}
	stack := []item{{index: tree.Root, wires: set.New[string](0)}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		parent := tree.Nodes[it.index]
		if parent.Kind == NodeInput {
			continue
		}
		var pushed []item
		for _, t := range parent.instr.Args().Terms {
			child, err := b.node(t.ID, false)
			if err != nil {
				return nil, err
			}
			wires := it.wires
			if child.Kind == NodeWire {
				if wires.Contains(child.ID) {
					return nil, diag.At(diag.UndefinedID, child.ID, "wire depends on itself")
				}
				wires = set.From(append(it.wires.Slice(), child.ID))
			}
			idx := tree.AddNode(child)
			tree.AddEdge(it.index, idx)
			pushed = append(pushed, item{index: idx, wires: wires})
		}
		for i := len(pushed) - 1; i >= 0; i-- {
			stack = append(stack, pushed[i])
		}
	}
	return tree, nil
}

// node makes the tree node for id. Compute values already claimed by a tree
// (or heading their own) become input leaves, except at the root.
func (b *treeBuilder) node(id string, root bool) (*Node, error) {
	ty, ok := b.env[id]
	if !ok {
		return nil, diag.At(diag.UndefinedID, id, "value has no definition")
	}
	instr, ok := b.producers[id]
	if !ok {
		return &Node{ID: id, Ty: ty, Kind: NodeInput}, nil
	}
	n := &Node{ID: id, Ty: ty, Op: instr.Name(), Attr: ir.AttrOf(instr), instr: instr}
	switch in := instr.(type) {
	case *ir.InstrWire:
		n.Kind = NodeWire
		return n, nil
	case *ir.InstrComp:
		if !root && b.isLeaf(id) {
			return &Node{ID: id, Ty: ty, Kind: NodeInput}, nil
		}
		if !root && b.visit != nil {
			b.visit(id)
		}
		n.Kind = NodeComp
		n.Prim = in.Prim
		n.Cost = Inf
		return n, nil
	}
	return nil, diag.At(diag.ConversionError, id, "call %s must be inlined before selection", instr.Name())
}
