package isel

import (
	"reticle/internal/ir"
	"reticle/internal/target"
)

// patTree is a target pattern prepared for matching.
type patTree struct {
	pat      *target.Pat
	tree     *Tree
	table    uint64
	hasTable bool
}

func newPatTree(pat *target.Pat) (*patTree, error) {
	out, err := pat.Output()
	if err != nil {
		return nil, err
	}
	def := pat.Def()
	b := &treeBuilder{
		producers: def.Producers(),
		env:       def.Env(),
		isLeaf:    func(string) bool { return false },
	}
	tree, err := b.build(out.ID)
	if err != nil {
		return nil, err
	}
	pt := &patTree{pat: pat, tree: tree}
	pt.table, pt.hasTable, err = lutTable(pat)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// match records how a pattern lays over a block tree.
type match struct {
	pat *patTree
	// nodes maps pattern node index to block node index.
	nodes map[int]int
	// region lists the block nodes the pattern consumes.
	region []int
	// inputs binds pattern input ids to block nodes.
	inputs map[string]int
}

// boundary returns the block nodes bound to the pattern inputs, in
// signature order.
func (m *match) boundary() ([]int, bool) {
	out := make([]int, 0, m.pat.pat.Sig.Input.Len())
	for _, t := range m.pat.pat.Sig.Input.Terms {
		b, ok := m.inputs[t.ID]
		if !ok {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// matchAt walks the pattern and the block breadth first in lock step from
// the pattern root and the block node at.
func matchAt(pt *patTree, block *Tree, at int) (*match, bool) {
	m := &match{pat: pt, nodes: make(map[int]int), inputs: make(map[string]int)}
	pq := []int{pt.tree.Root}
	bq := []int{at}
	for len(pq) > 0 {
		if len(bq) == 0 {
			return nil, false
		}
		pi, bi := pq[0], bq[0]
		pq, bq = pq[1:], bq[1:]
		p, b := pt.tree.Nodes[pi], block.Nodes[bi]
		if !p.Ty.IsAny() && p.Ty != b.Ty {
			return nil, false
		}
		if p.Kind == NodeInput {
			if prev, ok := m.inputs[p.ID]; ok && block.Nodes[prev].ID != b.ID {
				return nil, false
			}
			m.inputs[p.ID] = bi
			m.nodes[pi] = bi
			continue
		}
		if p.Kind != b.Kind || p.Op != b.Op {
			return nil, false
		}
		if b.Prim != ir.PrimAny && b.Prim != pt.pat.Prim {
			return nil, false
		}
		if !attrsMatch(p.Attr, b.Attr) || b.Committed {
			return nil, false
		}
		pc, bc := pt.tree.Children(pi), block.Children(bi)
		if len(pc) != len(bc) {
			return nil, false
		}
		m.nodes[pi] = bi
		m.region = append(m.region, bi)
		pq = append(pq, pc...)
		bq = append(bq, bc...)
	}
	if len(bq) != 0 {
		return nil, false
	}
	return m, true
}

// attrsMatch compares position-wise; a pattern wildcard matches any value.
func attrsMatch(pat, blk ir.Expr) bool {
	if pat.Len() != blk.Len() {
		return false
	}
	for i, p := range pat.Terms {
		if p.IsAny() {
			continue
		}
		if b := blk.Terms[i]; !b.IsVal() || b.Val != p.Val {
			return false
		}
	}
	return true
}

// attrs collects the values bound to pattern wildcards in pattern body
// order, then the LUT table when the pattern has one.
func (m *match) attrs(block *Tree) ir.Expr {
	byID := make(map[string]int)
	for pi, bi := range m.nodes {
		if n := m.pat.tree.Nodes[pi]; n.Kind != NodeInput {
			byID[n.ID] = bi
		}
	}
	out := ir.Expr{Tup: true}
	for _, instr := range m.pat.pat.Body {
		bi, ok := byID[instr.Dests().Terms[0].ID]
		if !ok {
			continue
		}
		blk := block.Nodes[bi].Attr
		for j, t := range ir.AttrOf(instr).Terms {
			if t.IsAny() {
				out.Terms = append(out.Terms, blk.Terms[j])
			}
		}
	}
	if m.pat.hasTable {
		out.Terms = append(out.Terms, ir.ValTerm(int64(m.pat.table)))
	}
	return out
}
