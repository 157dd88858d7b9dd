package verilog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/xir"
)

var upper = cases.Upper(language.Und)

// builder holds the module under construction and the type of every value.
type builder struct {
	mod   *Module
	types map[string]ir.Ty
}

func newBuilder(name string) builder {
	return builder{mod: &Module{Name: name}, types: make(map[string]ir.Ty)}
}

// structural lowers one xir program into a module.
type structural struct {
	builder
	ties map[xir.OpBasc]bool
}

// FromXir emits one primitive instance per machine instruction of prog.
func FromXir(prog *xir.Prog) (*Module, error) {
	s := &structural{builder: newBuilder(prog.Sig.ID), ties: make(map[xir.OpBasc]bool)}
	outputs := make(map[string]bool)
	for _, t := range prog.Sig.Output.Terms {
		outputs[t.ID] = true
	}
	s.ports(prog.Sig)
	for _, instr := range prog.Body {
		for _, t := range instr.Dests().Terms {
			if _, seen := s.types[t.ID]; seen {
				continue
			}
			s.types[t.ID] = t.Ty
			if !outputs[t.ID] {
				s.mod.AddDecl(Decl{Name: t.ID, Width: t.Ty.TotalWidth()})
			}
		}
	}
	wiring := s.mod.Stmts
	s.mod.Stmts = nil
	for _, instr := range prog.Body {
		if err := s.instr(instr); err != nil {
			return nil, err
		}
	}
	var ties []Stmt
	if s.ties[xir.BascGnd] {
		s.mod.AddDecl(Decl{Name: "gnd", Width: 1})
		ties = append(ties, &Instance{Prim: "GND", Name: "_gnd", Conns: []Conn{{Port: "G", Expr: "gnd"}}})
	}
	if s.ties[xir.BascVcc] {
		s.mod.AddDecl(Decl{Name: "vcc", Width: 1})
		ties = append(ties, &Instance{Prim: "VCC", Name: "_vcc", Conns: []Conn{{Port: "P", Expr: "vcc"}}})
	}
	s.mod.Stmts = append(append(wiring, ties...), s.mod.Stmts...)
	return s.mod, nil
}

// ports declares clock, reset and the flattened signature. Vector ports get
// one port per element plus an internal packed wire.
func (s *builder) ports(sig ir.Sig) {
	s.mod.AddPort(Input, "clock", 1)
	s.mod.AddPort(Input, "reset", 1)
	for _, dir := range []PortDir{Input, Output} {
		terms := sig.Input.Terms
		if dir == Output {
			terms = sig.Output.Terms
		}
		for _, t := range terms {
			s.types[t.ID] = t.Ty
			if !t.Ty.IsVector() {
				s.mod.AddPort(dir, t.ID, t.Ty.Width)
				continue
			}
			s.mod.AddDecl(Decl{Name: t.ID, Width: t.Ty.TotalWidth()})
			elems := make([]string, t.Ty.Len)
			for i := uint64(0); i < t.Ty.Len; i++ {
				port := fmt.Sprintf("%s_%d", t.ID, i)
				s.mod.AddPort(dir, port, t.Ty.Width)
				elems[t.Ty.Len-1-i] = port
				if dir == Output {
					s.mod.Assign(port, element(t.ID, t.Ty, i))
				}
			}
			if dir == Input {
				s.mod.Assign(t.ID, "{"+strings.Join(elems, ", ")+"}")
			}
		}
	}
}

// element selects element i of a packed vector value.
func element(id string, ty ir.Ty, i uint64) string {
	return slice(id, ty.TotalWidth(), i*ty.Width, (i+1)*ty.Width-1)
}

func slice(id string, width, lo, hi uint64) string {
	if width <= 1 {
		return id
	}
	if lo == hi {
		return fmt.Sprintf("%s[%d]", id, lo)
	}
	return fmt.Sprintf("%s[%d:%d]", id, hi, lo)
}

func (s *structural) instr(instr xir.Instr) error {
	switch in := instr.(type) {
	case *xir.InstrBasc:
		return s.basc(in)
	case *xir.InstrMach:
		return s.mach(in)
	}
	return diag.Errorf(diag.EmitError, "unknown instruction %s", instr)
}

func (s *structural) basc(in *xir.InstrBasc) error {
	dst, err := in.Dst.ID(0)
	if err != nil {
		return err
	}
	args, err := in.Arg.IDs()
	if err != nil {
		return err
	}
	switch in.Op {
	case xir.BascGnd, xir.BascVcc:
		s.ties[in.Op] = true
		s.mod.Assign(dst, in.Op.String())
	case xir.BascID:
		s.mod.Assign(dst, args[0])
	case xir.BascExt:
		lo, err := in.Attr.Val(0)
		if err != nil {
			return err
		}
		hi := lo
		if in.Attr.Len() > 1 {
			if hi, err = in.Attr.Val(1); err != nil {
				return err
			}
		}
		s.mod.Assign(dst, slice(args[0], s.types[args[0]].TotalWidth(), uint64(lo), uint64(hi)))
	case xir.BascCat:
		rev := make([]string, len(args))
		for i, a := range args {
			rev[len(args)-1-i] = a
		}
		s.mod.Assign(dst, "{"+strings.Join(rev, ", ")+"}")
	}
	return nil
}

func (s *structural) mach(in *xir.InstrMach) error {
	dst, err := in.Dst.ID(0)
	if err != nil {
		return err
	}
	args, err := in.Arg.IDs()
	if err != nil {
		return err
	}
	var inst *Instance
	switch {
	case in.Op.IsLut():
		inst, err = lut(in, dst, args)
	case in.Op.IsReg():
		inst, err = reg(in, dst, args)
	case in.Op.IsCarry():
		if len(args) != 2 {
			return diag.At(diag.EmitError, dst, "%s expects two operands, got %d", in.Op, len(args))
		}
		inst = carry(in, dst, args)
	case in.Op.IsDsp() && in.Op != xir.VecMul:
		inst, err = s.dsp(in, dst, args)
	default:
		return diag.At(diag.EmitError, dst, "no Verilog template for %s", in.Op)
	}
	if err != nil {
		return err
	}
	if in.Loc != nil {
		if x, y, ok := in.Loc.Placed(); ok {
			inst.Attrs = []Attr{{Name: "BEL", Value: belName(in.Loc.Bel)}, {Name: "LOC", Value: siteName(in.Loc.Bel, x, y)}}
		}
	}
	s.mod.Add(inst)
	return nil
}

func belName(b xir.Bel) string {
	name := upper.String(b.Name)
	switch b.Kind {
	case xir.BelLut:
		return name + "LUT"
	case xir.BelReg:
		return name[:1] + "FF" + name[1:]
	case xir.BelCarry:
		return "CARRY" + name[1:]
	case xir.BelDsp:
		return "DSP_" + name
	}
	return name
}

func siteName(b xir.Bel, x, y uint64) string {
	if b.Kind == xir.BelDsp {
		return fmt.Sprintf("DSP48E2_X%dY%d", x, y)
	}
	return fmt.Sprintf("SLICE_X%dY%d", x, y)
}

func lut(in *xir.InstrMach, dst string, args []string) (*Instance, error) {
	k := in.Op.LutInputs()
	if len(args) != k {
		return nil, diag.At(diag.EmitError, dst, "%s expects %d inputs, got %d", in.Op, k, len(args))
	}
	init, err := in.Attr.Val(0)
	if err != nil {
		return nil, diag.At(diag.EmitError, dst, "missing truth table: %v", err)
	}
	bits := uint64(1) << k
	table := uint64(init)
	if bits < 64 {
		table &= 1<<bits - 1
	}
	digits := bits / 4
	if digits == 0 {
		digits = 1
	}
	inst := &Instance{
		Prim:   upper.String(in.Op.String()),
		Name:   "__" + dst,
		Params: []Param{{Name: "INIT", Value: fmt.Sprintf("%d'h%0*x", bits, int(digits), table)}},
	}
	for i, a := range args {
		inst.Conns = append(inst.Conns, Conn{Port: fmt.Sprintf("I%d", i), Expr: a})
	}
	inst.Conns = append(inst.Conns, Conn{Port: "O", Expr: dst})
	return inst, nil
}

// reg emits FDRE or FDSE. The init bit comes from attr [init, bit], or the
// low bit of a lone [init].
func reg(in *xir.InstrMach, dst string, args []string) (*Instance, error) {
	if len(args) != 2 {
		return nil, diag.At(diag.EmitError, dst, "%s expects data and enable, got %d operands", in.Op, len(args))
	}
	var init int64
	if in.Attr.Len() > 0 {
		v, err := in.Attr.Val(0)
		if err != nil {
			return nil, err
		}
		var bit int64
		if in.Attr.Len() > 1 {
			if bit, err = in.Attr.Val(1); err != nil {
				return nil, err
			}
		}
		init = (v >> uint(bit)) & 1
	}
	rst := "R"
	if in.Op == xir.Fdse {
		rst = "S"
	}
	return &Instance{
		Prim:   upper.String(in.Op.String()),
		Name:   "__" + dst,
		Params: []Param{{Name: "INIT", Value: fmt.Sprintf("1'b%d", init)}},
		Conns: []Conn{
			{Port: "C", Expr: "clock"},
			{Port: "CE", Expr: args[1]},
			{Port: "D", Expr: args[0]},
			{Port: rst, Expr: "reset"},
			{Port: "Q", Expr: dst},
		},
	}, nil
}

func carry(in *xir.InstrMach, dst string, args []string) *Instance {
	ci := "1'b0"
	if in.Op == xir.CarrySub {
		ci = "1'b1"
	}
	return &Instance{
		Prim:   "CARRY8",
		Name:   "__" + dst,
		Params: []Param{{Name: "CARRY_TYPE", Value: `"SINGLE_CY8"`}},
		Conns: []Conn{
			{Port: "DI", Expr: args[0]},
			{Port: "S", Expr: args[1]},
			{Port: "CI", Expr: ci},
			{Port: "CI_TOP", Expr: "1'b0"},
			{Port: "O", Expr: dst},
			{Port: "CO", Expr: ""},
		},
	}
}
