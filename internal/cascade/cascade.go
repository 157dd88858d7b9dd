// Package cascade fuses chains of multiply-add primitives into DSP cascades,
// where each stage feeds the next through the dedicated PCOUT/PCIN route.
package cascade

import (
	"github.com/hashicorp/go-set/v3"
	"golang.org/x/exp/slices"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/xir"
)

// Optimize rewrites every chain of multiply-adds in which a result is the
// addend of the next stage. Chains are placed one per DSP column. It
// returns the rewritten program and the number of chains found.
func Optimize(prog *xir.Prog) (*xir.Prog, int, error) {
	byDst, pair, err := mapAndPair(prog)
	if err != nil {
		return nil, 0, err
	}
	chains := extract(pair)
	repl := make(map[string]*xir.InstrMach)
	for c, chain := range chains {
		k := len(chain)
		for j, id := range chain {
			in := xir.Clone(byDst[id]).(*xir.InstrMach)
			switch j {
			case 0:
				in.Op = xir.MulAddRegACo
			case k - 1:
				in.Op = xir.MulAddRegACi
			default:
				in.Op = xir.MulAddRegACio
			}
			bel := xir.Bel{Kind: xir.BelDsp, Name: "alu"}
			if in.Loc != nil {
				bel = in.Loc.Bel
			}
			in.Loc = &xir.Loc{
				Bel: bel,
				X:   asm.CoordVal{Val: uint64(c)},
				Y:   asm.CoordVal{Val: uint64(c + j)},
			}
			repl[id] = in
		}
	}
	out := &xir.Prog{Sig: prog.Sig.Clone(), Body: make([]xir.Instr, 0, len(prog.Body))}
	for _, instr := range prog.Body {
		if m, ok := instr.(*xir.InstrMach); ok {
			if r, ok := repl[m.Dst.Terms[0].ID]; ok {
				out.Body = append(out.Body, r)
				continue
			}
		}
		out.Body = append(out.Body, xir.Clone(instr))
	}
	return out, len(chains), nil
}

// mapAndPair indexes multiply-adds by destination and links each producer
// to the multiply-add consuming it as addend. PCOUT drives a single PCIN,
// so a producer feeding several multiply-adds pairs with the smallest
// consumer id.
func mapAndPair(prog *xir.Prog) (map[string]*xir.InstrMach, map[string]string, error) {
	byDst := make(map[string]*xir.InstrMach)
	var consumers []string
	addend := make(map[string]string)
	for _, instr := range prog.Body {
		m, ok := instr.(*xir.InstrMach)
		if !ok || (m.Op != xir.MulAdd && m.Op != xir.MulAddRegA) {
			continue
		}
		dst, err := m.Dst.ID(0)
		if err != nil {
			return nil, nil, err
		}
		arg, err := m.Arg.ID(2)
		if err != nil {
			return nil, nil, diag.At(diag.ConversionError, dst, "multiply-add without an addend: %v", err)
		}
		byDst[dst] = m
		addend[dst] = arg
		consumers = append(consumers, dst)
	}
	slices.Sort(consumers)
	pair := make(map[string]string)
	for _, consumer := range consumers {
		producer := addend[consumer]
		if _, ok := byDst[producer]; !ok {
			continue
		}
		if _, taken := pair[producer]; !taken {
			pair[producer] = consumer
		}
	}
	return byDst, pair, nil
}

// extract peels chains off pair, starting from the smallest producer id,
// walking back to the chain start and then forward to its end.
func extract(pair map[string]string) [][]string {
	var chains [][]string
	for len(pair) > 0 {
		keys := make([]string, 0, len(pair))
		for k := range pair {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		back := make(map[string]string, len(pair))
		for p, c := range pair {
			back[c] = p
		}
		start := keys[0]
		seen := set.From([]string{start})
		for {
			prev, ok := back[start]
			if !ok || !seen.Insert(prev) {
				break
			}
			start = prev
		}
		chain := []string{start}
		for cur := start; ; {
			next, ok := pair[cur]
			if !ok {
				break
			}
			delete(pair, cur)
			if slices.Contains(chain, next) {
				break
			}
			chain = append(chain, next)
			cur = next
		}
		chains = append(chains, chain)
	}
	return chains
}
