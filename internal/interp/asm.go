package interp

import (
	"fmt"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/target"
)

// Flatten replaces every tile invocation of prog with the IR body of the
// pattern it names. Pattern wildcards take the invocation attributes in
// body order; locals are renamed after the invocation destination.
func Flatten(prog *asm.Prog, t *target.Target) (*ir.Def, error) {
	def := &ir.Def{Sig: prog.Sig.Clone()}
	for _, instr := range prog.Body {
		switch in := instr.(type) {
		case *asm.InstrWire:
			def.Body = append(def.Body, in.InstrWire.Clone())
		case *asm.InstrAsm:
			body, err := expand(in, t)
			if err != nil {
				return nil, err
			}
			def.Body = append(def.Body, body...)
		}
	}
	return def, nil
}

func expand(in *asm.InstrAsm, t *target.Target) ([]ir.Instr, error) {
	pat, ok := t.Pat(in.Op)
	if !ok {
		return nil, diag.At(diag.UndefinedID, in.Op, "no pattern named %s", in.Op)
	}
	if pat.Sig.Input.Len() != in.Arg.Len() || pat.Sig.Output.Len() != in.Dst.Len() {
		return nil, diag.At(diag.ConversionError, in.Op, "invocation %s does not fit %s", in, pat.Sig)
	}
	prefix := in.Dst.Terms[0].ID
	scope := make(map[string]ir.ExprTerm)
	for i, t := range pat.Sig.Input.Terms {
		scope[t.ID] = in.Arg.Terms[i]
	}
	for i, t := range pat.Sig.Output.Terms {
		scope[t.ID] = in.Dst.Terms[i]
	}
	rename := func(e ir.Expr) ir.Expr {
		out := e.Clone()
		for i, t := range out.Terms {
			if !t.IsVar() {
				continue
			}
			if bound, ok := scope[t.ID]; ok {
				out.Terms[i] = ir.VarTerm(bound.ID, t.Ty)
				continue
			}
			out.Terms[i] = ir.VarTerm(fmt.Sprintf("%s/%s", prefix, t.ID), t.Ty)
		}
		return out
	}

	next := 0
	bind := func(attr ir.Expr) (ir.Expr, error) {
		out := attr.Clone()
		for i, t := range out.Terms {
			if !t.IsAny() {
				continue
			}
			v, err := in.Attr.Val(next)
			if err != nil {
				return ir.Expr{}, diag.At(diag.ConversionError, prefix, "%s is missing attribute %d", in.Op, next)
			}
			out.Terms[i] = ir.ValTerm(v)
			next++
		}
		return out, nil
	}

	body := make([]ir.Instr, 0, len(pat.Body))
	for _, instr := range pat.Body {
		c := instr.Clone()
		ir.SetDests(c, rename(c.Dests()))
		ir.SetArgs(c, rename(c.Args()))
		switch ci := c.(type) {
		case *ir.InstrWire:
			attr, err := bind(ci.Attr)
			if err != nil {
				return nil, err
			}
			ci.Attr = attr
		case *ir.InstrComp:
			attr, err := bind(ci.Attr)
			if err != nil {
				return nil, err
			}
			ci.Attr = attr
		}
		body = append(body, c)
	}
	return body, nil
}

// RunAsm interprets prog through the pattern bodies of t.
func RunAsm(prog *asm.Prog, t *target.Target, in *Trace) (*Trace, error) {
	def, err := Flatten(prog, t)
	if err != nil {
		return nil, err
	}
	return RunIR(def, in)
}
