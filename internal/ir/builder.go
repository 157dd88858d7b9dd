package ir

import (
	"fmt"
)

// Builder assembles a definition instruction by instruction. Operands are
// given by name and typed from the inputs and destinations seen so far.
type Builder struct {
	def  *Def
	env  map[string]Ty
	errs []error
}

// NewBuilder starts a definition named id.
func NewBuilder(id string) *Builder {
	return &Builder{
		def: &Def{Sig: Sig{ID: id, Input: Expr{Tup: true}, Output: Expr{Tup: true}}},
		env: make(map[string]Ty),
	}
}

// Input appends a signature input.
func (b *Builder) Input(id string, ty Ty) *Builder {
	b.def.Sig.Input.Terms = append(b.def.Sig.Input.Terms, VarTerm(id, ty))
	b.env[id] = ty
	return b
}

// Output appends a signature output.
func (b *Builder) Output(id string, ty Ty) *Builder {
	b.def.Sig.Output.Terms = append(b.def.Sig.Output.Terms, VarTerm(id, ty))
	return b
}

// Wire appends a wire instruction.
func (b *Builder) Wire(op OpWire, dst ExprTerm, attr []int64, args ...string) *Builder {
	b.add(&InstrWire{Op: op, Dst: Term(dst), Attr: attrExpr(attr), Arg: b.operands(args)})
	b.env[dst.ID] = dst.Ty
	return b
}

// Comp appends a compute instruction bound to prim.
func (b *Builder) Comp(op OpComp, dst ExprTerm, attr []int64, prim Prim, args ...string) *Builder {
	b.add(&InstrComp{Op: op, Dst: Term(dst), Attr: attrExpr(attr), Arg: b.operands(args), Prim: prim})
	b.env[dst.ID] = dst.Ty
	return b
}

// Call appends an invocation of another definition.
func (b *Builder) Call(name string, dst ExprTerm, args ...string) *Builder {
	if IsReserved(name) {
		b.errs = append(b.errs, fmt.Errorf("call target %q is a reserved op name", name))
	}
	b.add(&InstrCall{Op: name, Dst: Term(dst), Arg: b.operands(args)})
	b.env[dst.ID] = dst.Ty
	return b
}

func (b *Builder) add(instr Instr) {
	b.def.Body = append(b.def.Body, instr)
}

// operands types each name from the current environment. Names that are not
// known yet (register feedback) keep the Any type for inference to resolve.
func (b *Builder) operands(args []string) Expr {
	e := Expr{Tup: true}
	for _, id := range args {
		ty, ok := b.env[id]
		if !ok {
			ty = AnyTy()
		}
		e.Terms = append(e.Terms, VarTerm(id, ty))
	}
	return e
}

func attrExpr(attr []int64) Expr {
	if len(attr) == 0 {
		return Expr{Tup: true}
	}
	return Vals(attr...)
}

// Def finishes the definition. Forward references are typed in a final pass.
func (b *Builder) Def() (*Def, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	for _, instr := range b.def.Body {
		arg := instr.Args()
		for i, t := range arg.Terms {
			if t.IsVar() && t.Ty.IsAny() {
				if ty, ok := b.env[t.ID]; ok {
					arg.Terms[i].Ty = ty
				}
			}
		}
	}
	return b.def, nil
}

// MustDef is Def for statically known programs such as test fixtures.
func (b *Builder) MustDef() *Def {
	d, err := b.Def()
	if err != nil {
		panic(err)
	}
	return d
}
