package ir

import (
	"strings"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/diag"
)

// SortBody reorders the body so that every operand is defined before use.
// Sequential instructions are always ready since their value comes from
// state, and their destinations count as defined from the start. Ties keep
// source order.
func (d *Def) SortBody() error {
	ready := set.New[string](len(d.Body))
	for _, t := range d.Sig.Input.Terms {
		if t.IsVar() {
			ready.Insert(t.ID)
		}
	}
	for _, instr := range d.Body {
		if IsSequential(instr) {
			for _, t := range instr.Dests().Terms {
				ready.Insert(t.ID)
			}
		}
	}

	sorted := make([]Instr, 0, len(d.Body))
	pending := append([]Instr(nil), d.Body...)
	for len(pending) > 0 {
		var next []Instr
		for _, instr := range pending {
			if IsSequential(instr) || operandsReady(instr, ready) {
				sorted = append(sorted, instr)
				for _, t := range instr.Dests().Terms {
					ready.Insert(t.ID)
				}
				continue
			}
			next = append(next, instr)
		}
		if len(next) == len(pending) {
			ids := make([]string, 0, len(next))
			for _, instr := range next {
				ids = append(ids, instr.Dests().String())
			}
			return diag.At(diag.UndefinedID, d.Sig.ID, "cannot order %s: operands undefined or combinational loop", strings.Join(ids, ", "))
		}
		pending = next
	}
	d.Body = sorted
	return nil
}

func operandsReady(instr Instr, ready *set.Set[string]) bool {
	for _, t := range instr.Args().Terms {
		if t.IsVar() && !ready.Contains(t.ID) {
			return false
		}
	}
	return true
}

// IsSequential reports whether instr holds state across cycles.
func IsSequential(instr Instr) bool {
	comp, ok := instr.(*InstrComp)
	return ok && comp.Op.IsSequential()
}
