package isel

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reticle/internal/diag"
	"reticle/internal/frontend"
	"reticle/internal/ir"
	"reticle/internal/ultrascale"
)

func mustMain(t *testing.T, src string) *ir.Def {
	t.Helper()
	prog, err := frontend.ParseIR(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def, err := prog.Main()
	if err != nil {
		t.Fatalf("main: %v", err)
	}
	return def
}

func newSelector(t *testing.T) *Selector {
	t.Helper()
	tgt, err := ultrascale.Target()
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	s, err := NewSelector(tgt)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	return s
}

func bodyLines[T interface{ String() string }](body []T) []string {
	var out []string
	for _, instr := range body {
		out = append(out, instr.String())
	}
	return out
}

const fanout = `
def main(a:bool, b:bool, c:bool) -> (y:bool, z:bool) {
    t0:bool = and(a, b) @??;
    w0:bool = id(c);
    y:bool = or(t0, w0) @lut;
    z:bool = xor(t0, w0) @??;
}
`

func TestPartitionCoversEveryComputeOnce(t *testing.T) {
	def := mustMain(t, fanout)
	forest, err := Partition(def)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if got := len(forest.Trees); got != 3 {
		t.Fatalf("expected 3 trees, got %d", got)
	}
	var roots []string
	seen := make(map[string]int)
	wires := make(map[string]int)
	for _, tree := range forest.Trees {
		roots = append(roots, tree.Nodes[tree.Root].ID)
		for _, n := range tree.Nodes {
			switch n.Kind {
			case NodeComp:
				seen[n.ID]++
			case NodeWire:
				wires[n.ID]++
			}
		}
	}
	if diff := cmp.Diff([]string{"y", "z", "t0"}, roots); diff != "" {
		t.Fatalf("roots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"t0": 1, "y": 1, "z": 1}, seen); diff != "" {
		t.Fatalf("compute coverage mismatch (-want +got):\n%s", diff)
	}
	if wires["w0"] != 2 {
		t.Fatalf("expected wire w0 copied into both consumers, got %d", wires["w0"])
	}
}

func TestPartitionChildOrderFollowsOperands(t *testing.T) {
	def := mustMain(t, `
def main(c:bool, a:u8, b:u8) -> (y:u8) {
    t0:u8 = not(b) @lut;
    y:u8 = mux(c, a, t0) @lut;
}
`)
	forest, err := Partition(def)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	tree := forest.Trees[0]
	var got []string
	for _, c := range tree.Children(tree.Root) {
		got = append(got, tree.Nodes[c].ID)
	}
	if diff := cmp.Diff([]string{"c", "a", "t0"}, got); diff != "" {
		t.Fatalf("children mismatch (-want +got):\n%s", diff)
	}
	if !forest.Visited.Contains("t0") {
		t.Fatalf("interior node t0 not marked visited")
	}
}

func TestSelectPrefersFusedTile(t *testing.T) {
	def := mustMain(t, `
def main(a:bool, b:bool, c:bool) -> (y:bool) {
    t0:bool = and(a, b) @??;
    y:bool = or(t0, c) @??;
}
`)
	s := newSelector(t)
	forest, err := Partition(def)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	tree := forest.Trees[0]
	tiles, err := s.Tile(tree)
	if err != nil {
		t.Fatalf("tile: %v", err)
	}
	if tiles != 1 {
		t.Fatalf("expected a single fused tile, got %d", tiles)
	}
	root := tree.Nodes[tree.Root]
	if root.Cost != 1 || root.Pat != "lut_and_or_b_b_b_b" {
		t.Fatalf("expected lut_and_or_b_b_b_b at cost 1, got %s at %d", root.Pat, root.Cost)
	}
	prog, err := Codegen(def.Sig, forest)
	if err != nil {
		t.Fatalf("codegen: %v", err)
	}
	want := []string{"y:bool = lut_and_or_b_b_b_b[248](a, b, c) @lut(??, ??)"}
	if diff := cmp.Diff(want, bodyLines(prog.Body)); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectFanoutDoesNotOverlap(t *testing.T) {
	def := mustMain(t, fanout)
	prog, err := newSelector(t).Select(def)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	want := []string{
		"w0:bool = id(c)",
		"t0:bool = lut_and_b_b_b[8](a, b) @lut(??, ??)",
		"y:bool = lut_or_b_b_b[14](t0, w0) @lut(??, ??)",
		"z:bool = lut_xor_b_b_b[6](t0, w0) @lut(??, ??)",
	}
	if diff := cmp.Diff(want, bodyLines(prog.Body)); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectBindsAttributeWildcards(t *testing.T) {
	def := mustMain(t, `
def main(a:i8, en:bool) -> (y:i8) {
    y:i8 = reg[3](a, en) @lut;
}
`)
	prog, err := newSelector(t).Select(def)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	want := []string{"y:i8 = lut_reg_i8_i8_b[3](a, en) @lut(??, ??)"}
	if diff := cmp.Diff(want, bodyLines(prog.Body)); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectKeepsWires(t *testing.T) {
	def := mustMain(t, "def main(a:i8) -> (y:i8) { y:i8 = id(a); }")
	prog, err := newSelector(t).Select(def)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if diff := cmp.Diff([]string{"y:i8 = id(a)"}, bodyLines(prog.Body)); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectRespectsPrim(t *testing.T) {
	def := mustMain(t, `
def main(a:i8<4>, b:i8<4>) -> (y:i8<4>, z:i8<4>) {
    y:i8<4> = add(a, b) @dsp;
    z:i8<4> = add(a, b) @lut;
}
`)
	_, err := newSelector(t).Select(def)
	if !diag.IsKind(err, diag.NoCoverage) {
		t.Fatalf("expected no coverage for the lut vector add, got %v", err)
	}
	if !strings.Contains(err.Error(), "[z]") {
		t.Fatalf("expected error to name z, got %v", err)
	}
}

func TestSelectReportsNoCoverage(t *testing.T) {
	def := mustMain(t, `
def main(a:i8, b:i8) -> (y:bool) {
    y:bool = gt(a, b) @lut;
}
`)
	_, err := newSelector(t).Select(def)
	if !diag.IsKind(err, diag.NoCoverage) {
		t.Fatalf("expected no coverage, got %v", err)
	}
}

func TestSelectMulAddOverSeparateTiles(t *testing.T) {
	def := mustMain(t, `
def main(a:i8, b:i8, c:i8) -> (y:i8) {
    t0:i8 = mul(a, b) @dsp;
    y:i8 = add(t0, c) @??;
}
`)
	prog, err := newSelector(t).Select(def)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	want := []string{"y:i8 = dsp_muladd_i8_i8_i8_i8(a, b, c) @dsp(??, ??)"}
	if diff := cmp.Diff(want, bodyLines(prog.Body)); diff != "" {
		t.Fatalf("asm mismatch (-want +got):\n%s", diff)
	}
}

func TestLutTables(t *testing.T) {
	tgt, err := ultrascale.Target()
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	cases := map[string]uint64{
		"lut_and_b_b_b":      0x8,
		"lut_or_b_b_b":       0xe,
		"lut_xor_b_b_b":      0x6,
		"lut_not_b_b":        0x1,
		"lut_mux_b_b_b_b":    0xd8,
		"lut_and_or_b_b_b_b": 0xf8,
		"lut_and_u8_u8_u8":   0x8,
		"lut_mux_i8_b_i8_i8": 0xd8,
	}
	for name, want := range cases {
		pat, ok := tgt.Pat(name)
		if !ok {
			t.Fatalf("missing pattern %s", name)
		}
		got, ok, err := lutTable(pat)
		if err != nil || !ok {
			t.Fatalf("%s: expected a table, got ok=%v err=%v", name, ok, err)
		}
		if got != want {
			t.Errorf("%s: table %#x, want %#x", name, got, want)
		}
	}
	for _, name := range []string{"lut_eq_b_i8_i8", "lut_add_i8_i8_i8", "lut_reg_b_b_b", "dsp_mul_i8_i8_i8"} {
		pat, _ := tgt.Pat(name)
		if _, ok, _ := lutTable(pat); ok {
			t.Errorf("%s: unexpected table", name)
		}
	}
}

func customSelector(t *testing.T, pats, imps string) *Selector {
	t.Helper()
	tgt, err := frontend.ParseTarget(pats, imps)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	s, err := NewSelector(tgt)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	return s
}

func TestSelectEqualCostFirstPatternWins(t *testing.T) {
	const first = "def first: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = and(a, b) @lut; }\n"
	const second = "def second: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = and(a, b) @lut; }\n"
	imps := `
def first: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = lut2[_](a, b) @a6(??, ??); }
def second: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = lut2[_](a, b) @a6(??, ??); }
`
	cases := []struct {
		pats string
		want string
	}{
		{first + second, "first"},
		{second + first, "second"},
	}
	for _, tc := range cases {
		s := customSelector(t, tc.pats, imps)
		def := mustMain(t, "def main(a:bool, b:bool) -> (y:bool) { y:bool = and(a, b) @lut; }")
		forest, err := Partition(def)
		if err != nil {
			t.Fatalf("partition: %v", err)
		}
		tree := forest.Trees[0]
		if _, err := s.Tile(tree); err != nil {
			t.Fatalf("tile: %v", err)
		}
		if got := tree.Nodes[tree.Root].Pat; got != tc.want {
			t.Fatalf("expected %s to win the tie, got %s", tc.want, got)
		}
	}
}

const costPats = `
def not1: lut, 1, 2 (a:bool) -> (y:bool) { y:bool = not(a) @lut; }
def and2: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = and(a, b) @lut; }
def or2: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = or(a, b) @lut; }
def andnot: lut, 1, 3 (a:bool, b:bool) -> (y:bool) { t0:bool = not(b) @lut; y:bool = and(a, t0) @lut; }
def andor: lut, 1, 3 (a:bool, b:bool, c:bool) -> (y:bool) { t0:bool = and(a, b) @lut; y:bool = or(t0, c) @lut; }
def nor: lut, 1, 1 (a:bool, b:bool) -> (y:bool) { t0:bool = or(a, b) @lut; y:bool = not(t0) @lut; }
`

const costImps = `
def not1: lut, 1, 2 (a:bool) -> (y:bool) { y:bool = lut1[_](a) @a6(??, ??); }
def and2: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = lut2[_](a, b) @a6(??, ??); }
def or2: lut, 1, 2 (a:bool, b:bool) -> (y:bool) { y:bool = lut2[_](a, b) @a6(??, ??); }
def andnot: lut, 1, 3 (a:bool, b:bool) -> (y:bool) { y:bool = lut2[_](a, b) @a6(??, ??); }
def andor: lut, 1, 3 (a:bool, b:bool, c:bool) -> (y:bool) { y:bool = lut3[_](a, b, c) @a6(??, ??); }
def nor: lut, 1, 1 (a:bool, b:bool) -> (y:bool) { y:bool = lut2[_](a, b) @a6(??, ??); }
`

// cheapestCover enumerates every tiling of tree and returns the lowest sum
// of tile latencies.
func cheapestCover(s *Selector, tree *Tree) uint64 {
	var comps []int
	options := make(map[int][]*match)
	for _, i := range tree.PostOrder() {
		if tree.Nodes[i].Kind != NodeComp {
			continue
		}
		comps = append(comps, i)
		options[i] = []*match{nil}
		for _, pt := range s.pats {
			if m, ok := matchAt(pt, tree, i); ok {
				options[i] = append(options[i], m)
			}
		}
	}
	best := uint64(Inf)
	chosen := make(map[int]*match)
	var walk func(k int)
	walk = func(k int) {
		if k < len(comps) {
			for _, m := range options[comps[k]] {
				chosen[comps[k]] = m
				walk(k + 1)
			}
			return
		}
		if chosen[tree.Root] == nil {
			return
		}
		covered := make(map[int]int)
		var cost uint64
		for i, m := range chosen {
			if m == nil {
				continue
			}
			cost += m.pat.pat.Lat
			for _, r := range m.region {
				covered[r]++
			}
			bound, ok := m.boundary()
			if !ok {
				return
			}
			for _, b := range bound {
				if tree.Nodes[b].Kind == NodeComp && chosen[b] == nil {
					return
				}
			}
			if m.region[0] != i {
				return
			}
		}
		for _, i := range comps {
			if covered[i] != 1 {
				return
			}
		}
		if cost < best {
			best = cost
		}
	}
	walk(0)
	return best
}

func TestSelectCostIsOptimal(t *testing.T) {
	s := customSelector(t, costPats, costImps)
	srcs := []string{
		`def main(a:bool, b:bool, c:bool, d:bool) -> (y:bool) {
    t0:bool = not(b) @??;
    t1:bool = and(a, t0) @??;
    t2:bool = and(c, d) @??;
    t3:bool = or(t2, t1) @??;
    y:bool = not(t3) @??;
}`,
		`def main(a:bool, b:bool, c:bool) -> (y:bool) {
    t0:bool = and(a, b) @??;
    t1:bool = or(t0, c) @??;
    t2:bool = not(t1) @??;
    y:bool = and(t2, t1) @??;
}`,
		`def main(a:bool, b:bool, c:bool, d:bool) -> (y:bool) {
    t0:bool = or(a, b) @??;
    t1:bool = not(t0) @??;
    t2:bool = not(c) @??;
    t3:bool = and(t1, t2) @??;
    t4:bool = and(t3, d) @??;
    y:bool = or(t4, a) @??;
}`,
	}
	for _, src := range srcs {
		forest, err := Partition(mustMain(t, src))
		if err != nil {
			t.Fatalf("partition: %v", err)
		}
		for _, tree := range forest.Trees {
			want := cheapestCover(s, tree)
			if _, err := s.Tile(tree); err != nil {
				t.Fatalf("tile: %v", err)
			}
			if got := tree.Nodes[tree.Root].Cost; got != want {
				t.Fatalf("tree %s: selected cost %d, cheapest cover %d", tree.Nodes[tree.Root].ID, got, want)
			}
		}
	}
}
