package validate

import (
	"reticle/internal/diag"
	"reticle/internal/ir"
)

// checkInstr applies the typing rule of the instruction's op.
func (c *checker) checkInstr(instr ir.Instr) error {
	dst := instr.Dests()
	attr := ir.AttrOf(instr)
	if err := attr.CheckAttr(); err != nil {
		return err
	}
	for _, t := range attr.Terms {
		if !t.IsVal() {
			return diag.At(diag.TypeError, dst.String(), "attributes of %s must be values", instr.Name())
		}
	}
	if call, ok := instr.(*ir.InstrCall); ok {
		return c.checkCall(call)
	}
	if dst.Len() != 1 {
		return diag.At(diag.TypeError, dst.String(), "%s defines exactly one value", instr.Name())
	}
	r := rule{instr: instr, id: dst.Terms[0].ID, dst: dst.Terms[0].Ty, args: argTypes(instr), attr: attr}
	switch in := instr.(type) {
	case *ir.InstrWire:
		return r.wire(in.Op)
	case *ir.InstrComp:
		return r.comp(in.Op)
	}
	return nil
}

func (c *checker) checkCall(call *ir.InstrCall) error {
	callee, ok := c.prog.Defs[call.Op]
	if !ok {
		return diag.At(diag.UndefinedID, call.Op, "call to undefined definition")
	}
	if callee.Sig.Input.Len() != call.Arg.Len() || callee.Sig.Output.Len() != call.Dst.Len() {
		return diag.At(diag.TypeError, call.Op, "call arity mismatch: %s for %s", call, callee.Sig)
	}
	for i, t := range call.Arg.Terms {
		if want := callee.Sig.Input.Terms[i].Ty; t.Ty != want {
			return diag.At(diag.TypeError, t.ID, "argument %d of %s: want %s, got %s", i, call.Op, want, t.Ty)
		}
	}
	for i, t := range call.Dst.Terms {
		if want := callee.Sig.Output.Terms[i].Ty; t.Ty != want {
			return diag.At(diag.TypeError, t.ID, "result %d of %s: want %s, got %s", i, call.Op, want, t.Ty)
		}
	}
	return nil
}

func argTypes(instr ir.Instr) []ir.Ty {
	var tys []ir.Ty
	for _, t := range instr.Args().Terms {
		tys = append(tys, t.Ty)
	}
	return tys
}

type rule struct {
	instr ir.Instr
	id    string
	dst   ir.Ty
	args  []ir.Ty
	attr  ir.Expr
}

func (r rule) fail(format string, args ...any) error {
	return diag.At(diag.TypeError, r.id, "%s: "+format, append([]any{r.instr.Name()}, args...)...)
}

func (r rule) arity(n int) error {
	if len(r.args) != n {
		return r.fail("expected %d operand(s), got %d", n, len(r.args))
	}
	return nil
}

func (r rule) attrs(n int) error {
	if r.attr.Len() != n {
		return r.fail("expected %d attribute(s), got %d", n, r.attr.Len())
	}
	return nil
}

// sameAsDst requires the operands at idx to have the destination type.
func (r rule) sameAsDst(idx ...int) error {
	for _, i := range idx {
		if r.args[i] != r.dst {
			return r.fail("operand %d has type %s, want %s", i, r.args[i], r.dst)
		}
	}
	return nil
}

func (r rule) scalar(tys ...ir.Ty) error {
	for _, ty := range tys {
		if ty.IsVector() {
			return r.fail("vector type %s not allowed", ty)
		}
	}
	return nil
}

// perElement accepts one value, or one value per vector element.
func (r rule) perElement() error {
	if r.attr.Len() == 1 || (r.dst.IsVector() && uint64(r.attr.Len()) == r.dst.Length()) {
		return nil
	}
	return r.fail("expected one value or one per element, got %d", r.attr.Len())
}

func (r rule) wire(op ir.OpWire) error {
	switch op {
	case ir.WireID:
		if err := r.arity(1); err != nil {
			return err
		}
		if err := r.attrs(0); err != nil {
			return err
		}
		return r.sameAsDst(0)
	case ir.WireConst:
		if err := r.arity(0); err != nil {
			return err
		}
		return r.perElement()
	case ir.WireSll, ir.WireSrl, ir.WireSra:
		if err := r.arity(1); err != nil {
			return err
		}
		if err := r.attrs(1); err != nil {
			return err
		}
		if err := r.scalar(r.dst); err != nil {
			return err
		}
		if k := r.attr.Terms[0].Val; k < 0 || uint64(k) > r.dst.Width {
			return r.fail("shift amount %d out of range for %s", k, r.dst)
		}
		return r.sameAsDst(0)
	case ir.WireExt:
		if err := r.arity(1); err != nil {
			return err
		}
		if err := r.scalar(r.dst, r.args[0]); err != nil {
			return err
		}
		var lo, hi int64
		switch r.attr.Len() {
		case 1:
			lo, hi = r.attr.Terms[0].Val, r.attr.Terms[0].Val
		case 2:
			lo, hi = r.attr.Terms[0].Val, r.attr.Terms[1].Val
		default:
			return r.fail("expected [i] or [lo, hi], got %d attribute(s)", r.attr.Len())
		}
		if lo < 0 || lo > hi || uint64(hi) >= r.args[0].Width {
			return r.fail("range [%d, %d] out of bounds for %s", lo, hi, r.args[0])
		}
		if r.dst.Width != uint64(hi-lo+1) {
			return r.fail("destination %s cannot hold %d bit(s)", r.dst, hi-lo+1)
		}
	case ir.WireCat:
		if len(r.args) == 0 {
			return r.fail("expected at least one operand")
		}
		if err := r.attrs(0); err != nil {
			return err
		}
		if err := r.scalar(append([]ir.Ty{r.dst}, r.args...)...); err != nil {
			return err
		}
		var sum uint64
		for _, ty := range r.args {
			sum += ty.Width
		}
		if sum != r.dst.Width {
			return r.fail("operands total %d bit(s), destination %s", sum, r.dst)
		}
	}
	return nil
}

func (r rule) comp(op ir.OpComp) error {
	switch op {
	case ir.CompAdd, ir.CompSub, ir.CompMul, ir.CompAnd, ir.CompOr, ir.CompXor:
		if err := r.arity(2); err != nil {
			return err
		}
		return r.sameAsDst(0, 1)
	case ir.CompNot:
		if err := r.arity(1); err != nil {
			return err
		}
		return r.sameAsDst(0)
	case ir.CompMux:
		if err := r.arity(3); err != nil {
			return err
		}
		if !r.args[0].IsBool() {
			return r.fail("condition must be bool, got %s", r.args[0])
		}
		return r.sameAsDst(1, 2)
	case ir.CompEq, ir.CompNeq, ir.CompGt, ir.CompLt, ir.CompGe, ir.CompLe:
		if err := r.arity(2); err != nil {
			return err
		}
		if r.args[0] != r.args[1] {
			return r.fail("operands differ: %s and %s", r.args[0], r.args[1])
		}
		if err := r.scalar(r.args[0]); err != nil {
			return err
		}
		if !r.dst.IsBool() {
			return r.fail("result must be bool, got %s", r.dst)
		}
	case ir.CompReg:
		if err := r.arity(2); err != nil {
			return err
		}
		if err := r.perElement(); err != nil {
			return err
		}
		if !r.args[1].IsBool() {
			return r.fail("enable must be bool, got %s", r.args[1])
		}
		return r.sameAsDst(0)
	case ir.CompRom, ir.CompSrom:
		if err := r.arity(1); err != nil {
			return err
		}
		return r.memory()
	case ir.CompRam, ir.CompSram:
		if err := r.arity(3); err != nil {
			return err
		}
		if !r.args[2].IsBool() {
			return r.fail("write enable must be bool, got %s", r.args[2])
		}
		if err := r.sameAsDst(1); err != nil {
			return err
		}
		return r.memory()
	}
	return nil
}

func (r rule) memory() error {
	if r.attr.IsEmpty() {
		return r.fail("memory needs initial contents")
	}
	if err := r.scalar(r.dst); err != nil {
		return err
	}
	if addr := r.args[0]; addr.IsVector() || addr.IsSigned() {
		return r.fail("address must be unsigned, got %s", addr)
	}
	return nil
}
