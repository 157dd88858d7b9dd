// Package assembler expands a selected program into target primitives:
// constants become tie cells, shifts become bit wiring, and every tile
// invocation is replaced by its implementation body.
package assembler

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/target"
	"reticle/internal/xir"
)

// DefaultPrefix starts every generated name.
const DefaultPrefix = "t"

// Assembler holds the naming state of one expansion.
type Assembler struct {
	target  *target.Target
	prefix  string
	counter int
	// names maps a program id to its name in the expansion.
	names   map[string]string
	used    *set.Set[string]
	body    []xir.Instr
}

// New returns an assembler for t using the default name prefix.
func New(t *target.Target) *Assembler {
	return &Assembler{target: t, prefix: DefaultPrefix}
}

// WithPrefix changes the prefix of generated names.
func (a *Assembler) WithPrefix(prefix string) *Assembler {
	a.prefix = prefix
	return a
}

// Assemble expands prog. Signature inputs and outputs keep their names;
// every other id is renamed in order of first appearance.
func (a *Assembler) Assemble(prog *asm.Prog) (*xir.Prog, error) {
	a.counter = 0
	a.body = nil
	a.names = make(map[string]string)
	a.used = set.New[string](len(prog.Body))
	for _, e := range []ir.Expr{prog.Sig.Input, prog.Sig.Output} {
		for _, t := range e.Terms {
			a.names[t.ID] = t.ID
			a.used.Insert(t.ID)
		}
	}
	for _, instr := range prog.Body {
		var err error
		switch in := instr.(type) {
		case *asm.InstrWire:
			err = a.wire(&in.InstrWire)
		case *asm.InstrAsm:
			err = a.invoke(in)
		default:
			err = fmt.Errorf("unexpected instruction %s", instr)
		}
		if err != nil {
			return nil, err
		}
	}
	return &xir.Prog{Sig: prog.Sig.Clone(), Body: a.body}, nil
}

// fresh returns an unused name.
func (a *Assembler) fresh() string {
	for {
		name := fmt.Sprintf("%s%d", a.prefix, a.counter)
		a.counter++
		if a.used.Insert(name) {
			return name
		}
	}
}

// name returns the current name of id, renaming it on first sight.
func (a *Assembler) name(id string) string {
	if cur, ok := a.names[id]; ok {
		return cur
	}
	cur := a.fresh()
	a.names[id] = cur
	return cur
}

func (a *Assembler) rename(e ir.Expr) ir.Expr {
	out := e.Clone()
	for i, t := range out.Terms {
		if t.IsVar() {
			out.Terms[i].ID = a.name(t.ID)
		}
	}
	return out
}

func (a *Assembler) emit(instr xir.Instr) {
	a.body = append(a.body, instr)
}

func (a *Assembler) basc(op xir.OpBasc, dst ir.ExprTerm, attr ir.Expr, args ...ir.ExprTerm) {
	a.emit(&xir.InstrBasc{Op: op, Dst: ir.Term(dst), Attr: attr, Arg: ir.Tup(args...)})
}

func noAttr() ir.Expr { return ir.Expr{Tup: true} }

func (a *Assembler) wire(w *ir.InstrWire) error {
	arg := a.rename(w.Arg)
	dst, err := a.rename(w.Dst).Term(0)
	if err != nil {
		return err
	}
	switch w.Op {
	case ir.WireID:
		a.basc(xir.BascID, dst, noAttr(), arg.Terms...)
	case ir.WireExt:
		a.basc(xir.BascExt, dst, w.Attr.Clone(), arg.Terms...)
	case ir.WireCat:
		a.basc(xir.BascCat, dst, noAttr(), arg.Terms...)
	case ir.WireConst:
		return a.constant(dst, w.Attr)
	case ir.WireSll, ir.WireSrl, ir.WireSra:
		return a.shift(w.Op, dst, w.Attr, arg)
	default:
		return diag.At(diag.ConversionError, dst.ID, "unsupported wire op %s", w.Op)
	}
	return nil
}

// constant builds the value from one tie cell per bit, least significant
// bit first. Vectors are laid out element by element.
func (a *Assembler) constant(dst ir.ExprTerm, attr ir.Expr) error {
	width := dst.Ty.Width
	n := dst.Ty.Length()
	if attr.Len() != 1 && uint64(attr.Len()) != n {
		return diag.At(diag.ConversionError, dst.ID, "const needs one value or one per element")
	}
	if dst.Ty.TotalWidth() == 1 {
		v, err := attr.Val(0)
		if err != nil {
			return err
		}
		a.basc(tieCell(uint64(v)&1), dst, noAttr())
		return nil
	}
	var bits []ir.ExprTerm
	for e := uint64(0); e < n; e++ {
		idx := 0
		if attr.Len() > 1 {
			idx = int(e)
		}
		v, err := attr.Val(idx)
		if err != nil {
			return err
		}
		for i := uint64(0); i < width; i++ {
			bit := ir.VarTerm(a.fresh(), ir.BoolTy())
			a.basc(tieCell((uint64(v)>>i)&1), bit, noAttr())
			bits = append(bits, bit)
		}
	}
	a.basc(xir.BascCat, dst, noAttr(), bits...)
	return nil
}

func tieCell(bit uint64) xir.OpBasc {
	if bit == 1 {
		return xir.BascVcc
	}
	return xir.BascGnd
}

// shift rewires the operand bit by bit and fills vacated bits with ground,
// or with the sign bit for arithmetic right shifts.
func (a *Assembler) shift(op ir.OpWire, dst ir.ExprTerm, attr, arg ir.Expr) error {
	k64, err := attr.Val(0)
	if err != nil {
		return err
	}
	src, err := arg.Term(0)
	if err != nil {
		return err
	}
	w := int(dst.Ty.Width)
	k := int(k64)
	if k == 0 {
		a.basc(xir.BascID, dst, noAttr(), src)
		return nil
	}
	var fill *ir.ExprTerm
	filler := func() ir.ExprTerm {
		if fill != nil {
			return *fill
		}
		t := ir.VarTerm(a.fresh(), ir.BoolTy())
		if op == ir.WireSra {
			a.basc(xir.BascExt, t, ir.Vals(int64(w-1)), src)
		} else {
			a.basc(xir.BascGnd, t, noAttr())
		}
		fill = &t
		return t
	}
	bits := make([]ir.ExprTerm, w)
	for i := 0; i < w; i++ {
		j := i - k
		if op != ir.WireSll {
			j = i + k
		}
		if j < 0 || j >= w {
			bits[i] = filler()
			continue
		}
		t := ir.VarTerm(a.fresh(), ir.BoolTy())
		a.basc(xir.BascExt, t, ir.Vals(int64(j)), src)
		bits[i] = t
	}
	a.basc(xir.BascCat, dst, noAttr(), bits...)
	return nil
}

// invoke inlines the implementation of a tile. Implementation inputs and
// outputs map to the renamed invocation operands and destinations; every
// other name is replaced by a fresh one.
func (a *Assembler) invoke(in *asm.InstrAsm) error {
	imp, ok := a.target.Imp(in.Op)
	if !ok {
		return diag.At(diag.UndefinedID, in.Op, "no implementation for tile")
	}
	if imp.Sig.Input.Len() != in.Arg.Len() || imp.Sig.Output.Len() != in.Dst.Len() {
		return diag.At(diag.ConversionError, in.Op, "invocation %s does not fit %s", in, imp.Sig)
	}
	args, dsts := a.rename(in.Arg), a.rename(in.Dst)
	scope := make(map[string]string)
	for i, t := range imp.Sig.Input.Terms {
		scope[t.ID] = args.Terms[i].ID
	}
	for i, t := range imp.Sig.Output.Terms {
		scope[t.ID] = dsts.Terms[i].ID
	}
	for _, instr := range imp.Body {
		for _, t := range instr.Dests().Terms {
			if _, ok := scope[t.ID]; !ok {
				scope[t.ID] = a.fresh()
			}
		}
	}
	bind := func(e ir.Expr) (ir.Expr, error) {
		out := e.Clone()
		for i, t := range out.Terms {
			if !t.IsVar() {
				continue
			}
			name, ok := scope[t.ID]
			if !ok {
				return out, diag.At(diag.UndefinedID, t.ID, "not defined in implementation %s", in.Op)
			}
			out.Terms[i].ID = name
		}
		return out, nil
	}
	for _, instr := range imp.Body {
		dst, err := bind(instr.Dests())
		if err != nil {
			return err
		}
		arg, err := bind(instr.Args())
		if err != nil {
			return err
		}
		switch body := instr.(type) {
		case *xir.InstrBasc:
			attr, err := bindAttr(body.Attr, in)
			if err != nil {
				return err
			}
			a.emit(&xir.InstrBasc{Op: body.Op, Dst: dst, Attr: attr, Arg: arg})
		case *xir.InstrMach:
			attr, err := bindAttr(body.Attr, in)
			if err != nil {
				return err
			}
			mach := &xir.InstrMach{Op: body.Op, Dst: dst, Attr: attr, Arg: arg}
			if body.Loc != nil {
				mach.Loc = &xir.Loc{Bel: body.Loc.Bel, X: in.Loc.X, Y: in.Loc.Y}
			}
			a.emit(mach)
		}
	}
	return nil
}

// bindAttr fills the wildcard at position j with invocation attribute j.
func bindAttr(attr ir.Expr, in *asm.InstrAsm) (ir.Expr, error) {
	out := attr.Clone()
	for j, t := range out.Terms {
		if !t.IsAny() {
			continue
		}
		v, err := in.Attr.Val(j)
		if err != nil {
			return out, diag.At(diag.ConversionError, in.Op, "attribute %d of %s is not bound: %v", j, in.Dst, err)
		}
		out.Terms[j] = ir.ValTerm(v)
	}
	return out, nil
}
