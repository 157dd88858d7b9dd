package verilog

import (
	"fmt"
	"strings"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

// FromIR emits def as behavioral Verilog: one clocked process per register
// or memory and a continuous assignment for everything else. Calls must be
// inlined first. useDSP marks the module for DSP inference.
func FromIR(def *ir.Def, useDSP bool) (*Module, error) {
	b := newBuilder(def.Sig.ID)
	if useDSP {
		b.mod.Attrs = append(b.mod.Attrs, Attr{Name: "use_dsp", Value: "yes"})
	}
	outputs := make(map[string]bool)
	for _, t := range def.Sig.Output.Terms {
		outputs[t.ID] = true
	}
	b.ports(def.Sig)
	for _, instr := range def.Body {
		for _, t := range instr.Dests().Terms {
			b.types[t.ID] = t.Ty
			if !outputs[t.ID] {
				b.mod.AddDecl(Decl{Name: t.ID, Width: t.Ty.TotalWidth()})
			}
		}
	}
	for _, instr := range def.Body {
		var err error
		switch in := instr.(type) {
		case *ir.InstrWire:
			err = b.wire(in)
		case *ir.InstrComp:
			err = b.comp(in)
		case *ir.InstrCall:
			id, _ := in.Dst.ID(0)
			err = diag.At(diag.EmitError, id, "call to %s must be inlined before emission", in.Op)
		}
		if err != nil {
			return nil, err
		}
	}
	return b.mod, nil
}

// literal prints one value per element, or a single value for all of them.
func literal(ty ir.Ty, vals []int64) string {
	n := ty.Length()
	parts := make([]string, 0, n)
	for i := n; i > 0; i-- {
		v := vals[0]
		if uint64(len(vals)) == n {
			v = vals[i-1]
		}
		u := uint64(v)
		if ty.Width < 64 {
			u &= 1<<ty.Width - 1
		}
		parts = append(parts, fmt.Sprintf("%d'd%d", ty.Width, u))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func attrVals(e ir.Expr) []int64 {
	vals := make([]int64, 0, e.Len())
	for _, t := range e.Terms {
		vals = append(vals, t.Val)
	}
	return vals
}

func signed(id string, ty ir.Ty) string {
	if ty.IsSigned() {
		return "$signed(" + id + ")"
	}
	return id
}

func (b *builder) wire(in *ir.InstrWire) error {
	dst, err := in.Dst.ID(0)
	if err != nil {
		return err
	}
	ty := b.types[dst]
	args, err := in.Arg.IDs()
	if err != nil {
		return err
	}
	switch in.Op {
	case ir.WireID:
		b.mod.Assign(dst, args[0])
	case ir.WireConst:
		b.mod.Assign(dst, literal(ty, attrVals(in.Attr)))
	case ir.WireSll:
		b.mod.Assign(dst, fmt.Sprintf("%s << %d", args[0], in.Attr.Terms[0].Val))
	case ir.WireSrl:
		b.mod.Assign(dst, fmt.Sprintf("%s >> %d", args[0], in.Attr.Terms[0].Val))
	case ir.WireSra:
		b.mod.Assign(dst, fmt.Sprintf("$signed(%s) >>> %d", args[0], in.Attr.Terms[0].Val))
	case ir.WireExt:
		lo := uint64(in.Attr.Terms[0].Val)
		hi := lo
		if in.Attr.Len() > 1 {
			hi = uint64(in.Attr.Terms[1].Val)
		}
		b.mod.Assign(dst, slice(args[0], b.types[args[0]].TotalWidth(), lo, hi))
	case ir.WireCat:
		rev := make([]string, len(args))
		for i, a := range args {
			rev[len(args)-1-i] = a
		}
		b.mod.Assign(dst, "{"+strings.Join(rev, ", ")+"}")
	}
	return nil
}

// lanewise applies a binary operator element by element.
func (b *builder) lanewise(op string, ty ir.Ty, lhs, rhs string) string {
	if !ty.IsVector() {
		return fmt.Sprintf("%s %s %s", lhs, op, rhs)
	}
	parts := make([]string, 0, ty.Len)
	for i := ty.Len; i > 0; i-- {
		parts = append(parts, fmt.Sprintf("%s %s %s", element(lhs, ty, i-1), op, element(rhs, ty, i-1)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

var compOps = map[ir.OpComp]string{
	ir.CompAdd: "+",
	ir.CompSub: "-",
	ir.CompMul: "*",
	ir.CompAnd: "&",
	ir.CompOr:  "|",
	ir.CompXor: "^",
	ir.CompEq:  "==",
	ir.CompNeq: "!=",
	ir.CompGt:  ">",
	ir.CompLt:  "<",
	ir.CompGe:  ">=",
	ir.CompLe:  "<=",
}

func (b *builder) comp(in *ir.InstrComp) error {
	dst, err := in.Dst.ID(0)
	if err != nil {
		return err
	}
	ty := b.types[dst]
	args, err := in.Arg.IDs()
	if err != nil {
		return err
	}
	switch in.Op {
	case ir.CompAdd, ir.CompSub, ir.CompMul, ir.CompAnd, ir.CompOr, ir.CompXor:
		b.mod.Assign(dst, b.lanewise(compOps[in.Op], ty, args[0], args[1]))
	case ir.CompNot:
		b.mod.Assign(dst, "~"+args[0])
	case ir.CompMux:
		b.mod.Assign(dst, fmt.Sprintf("%s ? %s : %s", args[0], args[1], args[2]))
	case ir.CompEq, ir.CompNeq, ir.CompGt, ir.CompLt, ir.CompGe, ir.CompLe:
		aty := b.types[args[0]]
		b.mod.Assign(dst, fmt.Sprintf("%s %s %s", signed(args[0], aty), compOps[in.Op], signed(args[1], aty)))
	case ir.CompReg:
		q := b.state(dst, ty)
		b.mod.Add(&Always{Event: "posedge clock", Body: []string{
			"if (reset)",
			fmt.Sprintf("  %s <= %s;", q, literal(ty, attrVals(in.Attr))),
			fmt.Sprintf("else if (%s)", args[1]),
			fmt.Sprintf("  %s <= %s;", q, args[0]),
		}})
	case ir.CompRom, ir.CompSrom, ir.CompRam, ir.CompSram:
		b.memory(in, dst, ty, args)
	}
	return nil
}

// state declares the variable holding a sequential result and drives dst
// from it.
func (b *builder) state(dst string, ty ir.Ty) string {
	q := "__" + dst
	b.mod.AddDecl(Decl{Reg: true, Name: q, Width: ty.TotalWidth()})
	b.mod.Assign(dst, q)
	return q
}

func (b *builder) memory(in *ir.InstrComp, dst string, ty ir.Ty, args []string) {
	mem := "__" + dst + "_mem"
	contents := attrVals(in.Attr)
	b.mod.AddDecl(Decl{Reg: true, Name: mem, Width: ty.Width, Depth: uint64(len(contents))})
	init := make([]string, 0, len(contents))
	for i, v := range contents {
		init = append(init, fmt.Sprintf("%s[%d] = %s;", mem, i, literal(ty, []int64{v})))
	}
	b.mod.Add(&Initial{Body: init})
	read := fmt.Sprintf("%s[%s]", mem, args[0])
	var body []string
	if in.Op == ir.CompRam || in.Op == ir.CompSram {
		body = append(body, fmt.Sprintf("if (%s)", args[2]), fmt.Sprintf("  %s <= %s;", read, args[1]))
	}
	if in.Op == ir.CompSrom || in.Op == ir.CompSram {
		q := b.state(dst, ty)
		body = append(body, fmt.Sprintf("%s <= %s;", q, read))
	} else {
		b.mod.Assign(dst, read)
	}
	if len(body) > 0 {
		b.mod.Add(&Always{Event: "posedge clock", Body: body})
	}
}
