// Package target describes what the selector may tile with (patterns) and
// how each tile is realized in primitives (implementations).
package target

import (
	"fmt"
	"strings"

	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/xir"
)

// Header is the signature of a pattern or implementation together with its
// primitive class and costs.
type Header struct {
	Sig  ir.Sig
	Prim ir.Prim
	Area uint64
	Lat  uint64
}

func (h Header) String() string {
	return fmt.Sprintf("def %s: %s, %d, %d%s -> %s", h.Sig.ID, h.Prim, h.Area, h.Lat, ir.SigString(h.Sig.Input), ir.SigString(h.Sig.Output))
}

// Pat is a selectable tile described by an IR body.
type Pat struct {
	Header
	Body []ir.Instr
}

func (p *Pat) String() string {
	var sb strings.Builder
	sb.WriteString(p.Header.String())
	sb.WriteString(" ")
	ir.WriteBody(&sb, p.Body)
	return sb.String()
}

// Def views the pattern as an ordinary IR definition.
func (p *Pat) Def() *ir.Def {
	return &ir.Def{Sig: p.Sig, Body: p.Body}
}

// Output returns the single output term of the pattern.
func (p *Pat) Output() (ir.ExprTerm, error) {
	if p.Sig.Output.Len() != 1 {
		return ir.ExprTerm{}, diag.At(diag.ConversionError, p.Sig.ID, "pattern must have exactly one output, got %d", p.Sig.Output.Len())
	}
	return p.Sig.Output.Terms[0], nil
}

// Imp realizes the pattern of the same name in target primitives.
type Imp struct {
	Header
	Body []xir.Instr
}

func (i *Imp) String() string {
	var sb strings.Builder
	sb.WriteString(i.Header.String())
	sb.WriteString(" ")
	ir.WriteBody(&sb, i.Body)
	return sb.String()
}

// Target holds patterns and implementations in insertion order.
type Target struct {
	patOrder []string
	pats     map[string]*Pat
	impOrder []string
	imps     map[string]*Imp
}

func New() *Target {
	return &Target{pats: make(map[string]*Pat), imps: make(map[string]*Imp)}
}

// AddPat appends a pattern. Names must be unique.
func (t *Target) AddPat(p *Pat) error {
	if _, dup := t.pats[p.Sig.ID]; dup {
		return diag.At(diag.ParseError, p.Sig.ID, "duplicate pattern")
	}
	t.patOrder = append(t.patOrder, p.Sig.ID)
	t.pats[p.Sig.ID] = p
	return nil
}

// AddImp appends an implementation. Names must be unique.
func (t *Target) AddImp(i *Imp) error {
	if _, dup := t.imps[i.Sig.ID]; dup {
		return diag.At(diag.ParseError, i.Sig.ID, "duplicate implementation")
	}
	t.impOrder = append(t.impOrder, i.Sig.ID)
	t.imps[i.Sig.ID] = i
	return nil
}

func (t *Target) Pat(name string) (*Pat, bool) {
	p, ok := t.pats[name]
	return p, ok
}

func (t *Target) Imp(name string) (*Imp, bool) {
	i, ok := t.imps[name]
	return i, ok
}

// Pats returns patterns in insertion order.
func (t *Target) Pats() []*Pat {
	out := make([]*Pat, 0, len(t.patOrder))
	for _, name := range t.patOrder {
		out = append(out, t.pats[name])
	}
	return out
}

// Imps returns implementations in insertion order.
func (t *Target) Imps() []*Imp {
	out := make([]*Imp, 0, len(t.impOrder))
	for _, name := range t.impOrder {
		out = append(out, t.imps[name])
	}
	return out
}

// Check makes sure every pattern has one output and an implementation with
// the same interface.
func (t *Target) Check() error {
	for _, p := range t.Pats() {
		if _, err := p.Output(); err != nil {
			return err
		}
		imp, ok := t.imps[p.Sig.ID]
		if !ok {
			return diag.At(diag.UndefinedID, p.Sig.ID, "pattern has no implementation")
		}
		if err := sameInterface(p.Sig, imp.Sig); err != nil {
			return diag.At(diag.TypeError, p.Sig.ID, "%v", err)
		}
	}
	return nil
}

func sameInterface(a, b ir.Sig) error {
	if a.Input.Len() != b.Input.Len() || a.Output.Len() != b.Output.Len() {
		return fmt.Errorf("pattern %s and implementation %s disagree on arity", a, b)
	}
	for i, ta := range a.Input.Terms {
		if tb := b.Input.Terms[i]; ta.Ty != tb.Ty {
			return fmt.Errorf("input %d: pattern %s, implementation %s", i, ta.Ty, tb.Ty)
		}
	}
	for i, ta := range a.Output.Terms {
		if tb := b.Output.Terms[i]; ta.Ty != tb.Ty {
			return fmt.Errorf("output %d: pattern %s, implementation %s", i, ta.Ty, tb.Ty)
		}
	}
	return nil
}

func (t *Target) String() string {
	var sb strings.Builder
	for i, p := range t.Pats() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
