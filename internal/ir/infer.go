package ir

import "reticle/internal/diag"

// Operands is satisfied by the instructions of every program form (IR, asm
// and xir), which all carry typed destinations and name-only operands.
type Operands interface {
	Dests() Expr
	Args() Expr
}

// InferTypes types every operand of body from the signature inputs and the
// body destinations. Operands that already carry a type must agree with it.
func InferTypes[T Operands](sig Sig, body []T) error {
	env := make(map[string]Ty)
	for _, t := range sig.Input.Terms {
		if t.IsVar() {
			env[t.ID] = t.Ty
		}
	}
	for _, instr := range body {
		for _, t := range instr.Dests().Terms {
			if t.IsVar() {
				env[t.ID] = t.Ty
			}
		}
	}
	for _, instr := range body {
		arg := instr.Args()
		for i, t := range arg.Terms {
			if !t.IsVar() {
				continue
			}
			ty, ok := env[t.ID]
			if !ok {
				return diag.At(diag.UndefinedID, t.ID, "operand of %s is not defined in %s", instr, sig.ID)
			}
			if !t.Ty.IsAny() && t.Ty != ty {
				return diag.At(diag.TypeError, t.ID, "operand typed %s but defined as %s", t.Ty, ty)
			}
			arg.Terms[i].Ty = ty
		}
	}
	return nil
}

// InferTypes types every operand of the definition.
func (d *Def) InferTypes() error {
	return InferTypes(d.Sig, d.Body)
}

// HasAnyTy reports whether some signature port, destination or operand is
// still untyped.
func HasAnyTy[T Operands](sig Sig, body []T) bool {
	untyped := func(e Expr) bool {
		for _, t := range e.Terms {
			if t.IsVar() && t.Ty.IsAny() {
				return true
			}
		}
		return false
	}
	if untyped(sig.Input) || untyped(sig.Output) {
		return true
	}
	for _, instr := range body {
		if untyped(instr.Dests()) || untyped(instr.Args()) {
			return true
		}
	}
	return false
}
