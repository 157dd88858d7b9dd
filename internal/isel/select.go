package isel

import (
	"github.com/hashicorp/go-set/v3"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/logger"
	"reticle/internal/target"
)

// Selector tiles definitions with the patterns of a target.
type Selector struct {
	pats []*patTree
}

// NewSelector prepares every pattern of t in insertion order.
func NewSelector(t *target.Target) (*Selector, error) {
	s := &Selector{}
	for _, pat := range t.Pats() {
		pt, err := newPatTree(pat)
		if err != nil {
			return nil, err
		}
		s.pats = append(s.pats, pt)
	}
	return s, nil
}

// Select partitions def, tiles every tree and generates the asm program.
func (s *Selector) Select(def *ir.Def) (*asm.Prog, error) {
	forest, err := Partition(def)
	if err != nil {
		return nil, err
	}
	logger.Debug("partitioned", "def", def.Sig.ID, "trees", len(forest.Trees))
	tiles := 0
	for _, tree := range forest.Trees {
		n, err := s.Tile(tree)
		if err != nil {
			return nil, err
		}
		tiles += n
	}
	logger.Debug("tiled", "def", def.Sig.ID, "tiles", tiles)
	return Codegen(def.Sig, forest)
}

// Tile finds the cheapest cover of tree and commits it. It returns the
// number of tiles used.
func (s *Selector) Tile(tree *Tree) (int, error) {
	choice := make(map[int]*match)
	for _, i := range tree.PostOrder() {
		n := tree.Nodes[i]
		switch n.Kind {
		case NodeInput:
			n.Cost = 0
		case NodeWire:
			n.Cost = 0
			for _, c := range tree.Children(i) {
				n.Cost = addCost(n.Cost, tree.Nodes[c].Cost)
			}
		case NodeComp:
			n.Cost = Inf
			for _, pt := range s.pats {
				m, ok := matchAt(pt, tree, i)
				if !ok {
					continue
				}
				cost, ok := s.cost(tree, m)
				if !ok || cost >= n.Cost {
					continue
				}
				n.Cost = cost
				choice[i] = m
			}
		}
	}
	return commit(tree, choice)
}

func (s *Selector) cost(tree *Tree, m *match) (uint64, bool) {
	bound, ok := m.boundary()
	if !ok {
		return 0, false
	}
	cost := m.pat.pat.Lat
	for _, b := range bound {
		cost = addCost(cost, tree.Nodes[b].Cost)
	}
	return cost, cost != Inf
}

func addCost(a, b uint64) uint64 {
	if a == Inf || b == Inf || a+b < a {
		return Inf
	}
	return a + b
}

// commit walks the winning choices from the root and marks their regions.
func commit(tree *Tree, choice map[int]*match) (int, error) {
	tiles := 0
	stack := []int{tree.Root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := tree.Nodes[i]
		switch n.Kind {
		case NodeWire:
			stack = append(stack, tree.Children(i)...)
		case NodeComp:
			m := choice[i]
			if m == nil {
				return tiles, diag.At(diag.NoCoverage, n.ID, "no pattern covers %s", n)
			}
			for _, r := range m.region {
				if tree.Nodes[r].Committed {
					return tiles, diag.At(diag.NoCoverage, tree.Nodes[r].ID, "tiles overlap at %s", tree.Nodes[r])
				}
				tree.Nodes[r].Committed = true
			}
			n.Pat = m.pat.pat.Sig.ID
			n.PatPrim = m.pat.pat.Prim
			tiles++
			bound, _ := m.boundary()
			stack = append(stack, bound...)
		}
	}
	tree.matches = choice
	return tiles, nil
}

// Codegen emits the selected program. Tile roots become asm instructions,
// uncovered wires are kept once, and input leaves produce nothing. The body
// is ordered so that values are defined before use.
func Codegen(sig ir.Sig, forest *Forest) (*asm.Prog, error) {
	prog := &asm.Prog{Sig: sig.Clone()}
	emitted := set.New[string](0)
	state := set.New[string](0)
	for _, tree := range forest.Trees {
		for _, i := range tree.PostOrder() {
			n := tree.Nodes[i]
			switch {
			case n.Kind == NodeWire && !n.Committed:
				if !emitted.Insert(n.ID) {
					continue
				}
				w, ok := n.instr.(*ir.InstrWire)
				if !ok {
					return nil, diag.At(diag.ConversionError, n.ID, "wire node without a wire instruction")
				}
				prog.Body = append(prog.Body, asm.NewWire(w))
			case n.Kind == NodeComp && n.Pat != "":
				if !emitted.Insert(n.ID) {
					continue
				}
				instr, err := tileInstr(tree, n)
				if err != nil {
					return nil, err
				}
				if ir.IsSequential(n.instr) {
					state.Insert(n.ID)
				}
				prog.Body = append(prog.Body, instr)
			}
		}
	}
	prog.Body = defOrder(sig, prog.Body, state)
	return prog, nil
}

// defOrder schedules body in waves: an instruction is ready once its
// operands are defined. Tiles rooted at a register are ready from the start
// and so are their values. Ties keep emission order.
func defOrder(sig ir.Sig, body []asm.Instr, state *set.Set[string]) []asm.Instr {
	ready := set.New[string](len(body))
	for _, t := range sig.Input.Terms {
		ready.Insert(t.ID)
	}
	ready.InsertSet(state)
	isReady := func(instr asm.Instr) bool {
		if id, err := instr.Dests().ID(0); err == nil && state.Contains(id) {
			return true
		}
		for _, t := range instr.Args().Terms {
			if t.IsVar() && !ready.Contains(t.ID) {
				return false
			}
		}
		return true
	}
	out := make([]asm.Instr, 0, len(body))
	pending := body
	for len(pending) > 0 {
		var next []asm.Instr
		for _, instr := range pending {
			if !isReady(instr) {
				next = append(next, instr)
				continue
			}
			out = append(out, instr)
			for _, t := range instr.Dests().Terms {
				ready.Insert(t.ID)
			}
		}
		if len(next) == len(pending) {
			// A loop through a register inside a tile; keep the rest as is.
			return append(out, next...)
		}
		pending = next
	}
	return out
}

func tileInstr(tree *Tree, n *Node) (*asm.InstrAsm, error) {
	m := tree.matches[n.Index]
	if m == nil {
		return nil, diag.At(diag.NoCoverage, n.ID, "tile root has no match")
	}
	bound, ok := m.boundary()
	if !ok {
		return nil, diag.At(diag.ConversionError, n.ID, "pattern %s leaves an input unbound", n.Pat)
	}
	arg := ir.Expr{Tup: true}
	for _, b := range bound {
		in := tree.Nodes[b]
		arg.Terms = append(arg.Terms, ir.VarTerm(in.ID, in.Ty))
	}
	return &asm.InstrAsm{
		Op:   n.Pat,
		Dst:  ir.Term(ir.VarTerm(n.ID, n.Ty)),
		Attr: m.attrs(tree),
		Arg:  arg,
		Loc:  asm.Loc{Prim: n.PatPrim, X: asm.CoordAny{}, Y: asm.CoordAny{}},
	}, nil
}
