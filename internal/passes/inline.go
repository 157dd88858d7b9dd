package passes

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

// Inline replaces every call in main with the body of the callee, so that
// selection and emission only ever see a single flat definition. Callee
// locals are renamed after the call destination; the rest of the program
// is left untouched.
type Inline struct{}

func NewInline() *Inline { return &Inline{} }

func (*Inline) Name() string { return "inline" }

func (*Inline) Run(prog *ir.Prog) error {
	def, err := prog.Main()
	if err != nil {
		return err
	}
	in := &inliner{prog: prog, used: set.New[string](len(def.Body))}
	for _, t := range def.Sig.Input.Terms {
		in.used.Insert(t.ID)
	}
	for _, instr := range def.Body {
		for _, t := range instr.Dests().Terms {
			in.used.Insert(t.ID)
		}
	}
	body, err := in.expand(def.Body, []string{def.Sig.ID})
	if err != nil {
		return err
	}
	def.Body = body
	return nil
}

type inliner struct {
	prog *ir.Prog
	used *set.Set[string]
}

// fresh derives an unused name from base.
func (in *inliner) fresh(base string) string {
	name := base
	for i := 0; in.used.Contains(name); i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	in.used.Insert(name)
	return name
}

func (in *inliner) expand(body []ir.Instr, stack []string) ([]ir.Instr, error) {
	out := make([]ir.Instr, 0, len(body))
	for _, instr := range body {
		call, ok := instr.(*ir.InstrCall)
		if !ok {
			out = append(out, instr)
			continue
		}
		inlined, err := in.call(call, stack)
		if err != nil {
			return nil, err
		}
		out = append(out, inlined...)
	}
	return out, nil
}

func (in *inliner) call(call *ir.InstrCall, stack []string) ([]ir.Instr, error) {
	dst := call.Dst.Terms[0].ID
	for _, name := range stack {
		if name == call.Op {
			return nil, diag.At(diag.ConversionError, dst, "recursive call to %s", call.Op)
		}
	}
	callee, ok := in.prog.Defs[call.Op]
	if !ok {
		return nil, diag.At(diag.UndefinedID, dst, "call to undefined definition %s", call.Op)
	}
	if callee.Sig.Input.Len() != call.Arg.Len() || callee.Sig.Output.Len() != call.Dst.Len() {
		return nil, diag.At(diag.ConversionError, dst, "call to %s does not match its signature", call.Op)
	}
	scope := make(map[string]string)
	for i, t := range callee.Sig.Input.Terms {
		scope[t.ID] = call.Arg.Terms[i].ID
	}
	for i, t := range callee.Sig.Output.Terms {
		scope[t.ID] = call.Dst.Terms[i].ID
	}
	// An output fed straight from an input needs a copy.
	var copies []ir.Instr
	producers := callee.Producers()
	for i, t := range callee.Sig.Output.Terms {
		if _, produced := producers[t.ID]; !produced {
			copies = append(copies, &ir.InstrWire{
				Op:   ir.WireID,
				Dst:  ir.Term(call.Dst.Terms[i]),
				Attr: ir.Expr{Tup: true},
				Arg:  ir.Term(ir.VarTerm(scope[t.ID], t.Ty)),
			})
		}
	}
	rename := func(e ir.Expr, define bool) ir.Expr {
		out := e.Clone()
		for i, t := range out.Terms {
			if !t.IsVar() {
				continue
			}
			name, ok := scope[t.ID]
			if !ok {
				if !define {
					name = t.ID
				} else {
					name = in.fresh(dst + "_" + t.ID)
					scope[t.ID] = name
				}
			}
			out.Terms[i].ID = name
		}
		return out
	}
	body := make([]ir.Instr, 0, len(callee.Body))
	for _, instr := range callee.Body {
		c := instr.Clone()
		ir.SetDests(c, rename(c.Dests(), true))
		body = append(body, c)
	}
	for _, c := range body {
		ir.SetArgs(c, rename(c.Args(), false))
	}
	expanded, err := in.expand(body, append(append([]string(nil), stack...), call.Op))
	if err != nil {
		return nil, err
	}
	return append(expanded, copies...), nil
}
