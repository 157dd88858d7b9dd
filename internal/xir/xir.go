// Package xir models UltraScale target primitives: basic wiring ops, machine
// ops bound to BELs, and the programs built from them.
package xir

import (
	"fmt"
	"strings"

	"reticle/internal/asm"
	"reticle/internal/ir"
)

// OpBasc enumerates the basic (tie cell and wiring) ops.
type OpBasc int

const (
	BascID OpBasc = iota
	BascGnd
	BascVcc
	BascExt
	BascCat
)

var bascNames = []string{"id", "gnd", "vcc", "ext", "cat"}

func (o OpBasc) String() string { return bascNames[o] }

// ParseOpBasc looks up a basic op by name.
func ParseOpBasc(s string) (OpBasc, bool) {
	for i, name := range bascNames {
		if name == s {
			return OpBasc(i), true
		}
	}
	return 0, false
}

// OpMach enumerates machine ops.
type OpMach int

const (
	Lut1 OpMach = iota
	Lut2
	Lut3
	Lut4
	Lut5
	Lut6
	Fdre
	Fdse
	CarryAdd
	CarrySub
	VecAddRegA
	VecAdd
	VecSub
	VecMul
	Mul
	MulAdd
	MulAddRegA
	MulAddRegACi
	MulAddRegACo
	MulAddRegACio
	Lram
	Bram
	Lrom
	Brom
)

var machNames = []string{
	"lut1", "lut2", "lut3", "lut4", "lut5", "lut6", "fdre", "fdse",
	"carryadd", "carrysub", "vaddrega", "vadd", "vsub", "vmul", "mul",
	"muladd", "muladdrega", "muladdregaci", "muladdregaco", "muladdregacio",
	"lram", "bram", "lrom", "brom",
}

func (o OpMach) String() string { return machNames[o] }

// ParseOpMach looks up a machine op by name.
func ParseOpMach(s string) (OpMach, bool) {
	for i, name := range machNames {
		if name == s {
			return OpMach(i), true
		}
	}
	return 0, false
}

// LutInputs returns the input count of a LUT op, zero otherwise.
func (o OpMach) LutInputs() int {
	if o >= Lut1 && o <= Lut6 {
		return int(o-Lut1) + 1
	}
	return 0
}

func (o OpMach) IsLut() bool   { return o.LutInputs() > 0 }
func (o OpMach) IsReg() bool   { return o == Fdre || o == Fdse }
func (o OpMach) IsCarry() bool { return o == CarryAdd || o == CarrySub }
func (o OpMach) IsMem() bool   { return o >= Lram }

// IsDsp reports whether the op maps to a DSP48E2.
func (o OpMach) IsDsp() bool {
	return o >= VecAddRegA && o <= MulAddRegACio
}

// IsMulAdd reports whether the op is a multiply-add, cascaded or not.
func (o OpMach) IsMulAdd() bool {
	return o >= MulAdd && o <= MulAddRegACio
}

// BelKind groups BELs by resource.
type BelKind int

const (
	BelLut BelKind = iota
	BelReg
	BelCarry
	BelDsp
	BelBlock
	BelLum
)

// Bel is a site inside a slice, DSP column or memory block.
type Bel struct {
	Kind BelKind
	Name string
}

func (b Bel) String() string { return b.Name }

// ParseBel resolves a BEL name. h6 names the LUT site; the LUT-as-memory
// view of the same site uses BelLum explicitly.
func ParseBel(s string) (Bel, bool) {
	if len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && (s[1] == '5' || s[1] == '6') {
		return Bel{Kind: BelLut, Name: s}, true
	}
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'h' {
		return Bel{Kind: BelReg, Name: s}, true
	}
	if len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] == '2' {
		return Bel{Kind: BelReg, Name: s}, true
	}
	switch s {
	case "c8", "c4":
		return Bel{Kind: BelCarry, Name: s}, true
	case "alu":
		return Bel{Kind: BelDsp, Name: s}, true
	case "u", "l":
		return Bel{Kind: BelBlock, Name: s}, true
	}
	return Bel{}, false
}

// Loc is a BEL with coordinates.
type Loc struct {
	Bel  Bel
	X, Y asm.ExprCoord
}

func (l Loc) String() string {
	return fmt.Sprintf("%s(%s, %s)", l.Bel, coord(l.X), coord(l.Y))
}

func coord(c asm.ExprCoord) string {
	if c == nil {
		return "??"
	}
	return c.String()
}

// Placed reports whether both coordinates are fixed numbers.
func (l Loc) Placed() (x, y uint64, ok bool) {
	x, okx := asm.Resolve(l.X)
	y, oky := asm.Resolve(l.Y)
	return x, y, okx && oky
}

// Instr is implemented by InstrBasc and InstrMach.
type Instr interface {
	isXir()
	Dests() ir.Expr
	Args() ir.Expr
	fmt.Stringer
}

// InstrBasc is a basic op.
type InstrBasc struct {
	Op   OpBasc
	Attr ir.Expr
	Dst  ir.Expr
	Arg  ir.Expr
}

func (*InstrBasc) isXir()           {}
func (i *InstrBasc) Dests() ir.Expr { return i.Dst }
func (i *InstrBasc) Args() ir.Expr  { return i.Arg }

func (i *InstrBasc) String() string {
	return fmt.Sprintf("%s = %s%s%s", i.Dst, i.Op, ir.AttrString(i.Attr), ir.ArgString(i.Arg))
}

// InstrMach is a machine op, optionally placed.
type InstrMach struct {
	Op   OpMach
	Attr ir.Expr
	Dst  ir.Expr
	Arg  ir.Expr
	Loc  *Loc
}

func (*InstrMach) isXir()           {}
func (i *InstrMach) Dests() ir.Expr { return i.Dst }
func (i *InstrMach) Args() ir.Expr  { return i.Arg }

func (i *InstrMach) String() string {
	s := fmt.Sprintf("%s = %s%s%s", i.Dst, i.Op, ir.AttrString(i.Attr), ir.ArgString(i.Arg))
	if i.Loc != nil {
		s += " @" + i.Loc.String()
	}
	return s
}

// Clone deep-copies an instruction.
func Clone(instr Instr) Instr {
	switch in := instr.(type) {
	case *InstrBasc:
		return &InstrBasc{Op: in.Op, Attr: in.Attr.Clone(), Dst: in.Dst.Clone(), Arg: in.Arg.Clone()}
	case *InstrMach:
		c := &InstrMach{Op: in.Op, Attr: in.Attr.Clone(), Dst: in.Dst.Clone(), Arg: in.Arg.Clone()}
		if in.Loc != nil {
			loc := *in.Loc
			c.Loc = &loc
		}
		return c
	}
	return instr
}

// Prog is an assembled definition.
type Prog struct {
	Sig  ir.Sig
	Body []Instr
}

func (p *Prog) String() string {
	var sb strings.Builder
	sb.WriteString(p.Sig.String())
	sb.WriteString(" ")
	ir.WriteBody(&sb, p.Body)
	return sb.String()
}

func (p *Prog) Clone() *Prog {
	out := &Prog{Sig: p.Sig.Clone(), Body: make([]Instr, 0, len(p.Body))}
	for _, instr := range p.Body {
		out.Body = append(out.Body, Clone(instr))
	}
	return out
}
