// Package asm holds the program form produced by instruction selection: wire
// instructions carried over from the IR plus one invocation per selected tile.
package asm

import (
	"fmt"
	"strings"

	"reticle/internal/ir"
)

// ExprCoord is a location coordinate.
type ExprCoord interface {
	isCoord()
	fmt.Stringer
}

// CoordAny is an unresolved coordinate.
type CoordAny struct{}

// CoordVal is a fixed coordinate.
type CoordVal struct{ Val uint64 }

// CoordVar names a coordinate resolved later.
type CoordVar struct{ Name string }

// CoordAdd is lhs+rhs.
type CoordAdd struct{ Lhs, Rhs ExprCoord }

func (CoordAny) isCoord() {}
func (CoordVal) isCoord() {}
func (CoordVar) isCoord() {}
func (CoordAdd) isCoord() {}

func (CoordAny) String() string   { return "??" }
func (c CoordVal) String() string { return fmt.Sprintf("%d", c.Val) }
func (c CoordVar) String() string { return c.Name }
func (c CoordAdd) String() string { return fmt.Sprintf("%s+%s", c.Lhs, c.Rhs) }

// Resolve evaluates c when it only involves fixed values.
func Resolve(c ExprCoord) (uint64, bool) {
	switch v := c.(type) {
	case CoordVal:
		return v.Val, true
	case CoordAdd:
		l, ok := Resolve(v.Lhs)
		if !ok {
			return 0, false
		}
		r, ok := Resolve(v.Rhs)
		if !ok {
			return 0, false
		}
		return l + r, true
	}
	return 0, false
}

// Loc binds a tile invocation to a primitive class and coordinates.
type Loc struct {
	Prim ir.Prim
	X, Y ExprCoord
}

func (l Loc) String() string {
	return fmt.Sprintf("@%s(%s, %s)", l.Prim, coordOrAny(l.X), coordOrAny(l.Y))
}

func coordOrAny(c ExprCoord) string {
	if c == nil {
		return CoordAny{}.String()
	}
	return c.String()
}

// Instr is implemented by InstrWire and InstrAsm.
type Instr interface {
	isAsm()
	Dests() ir.Expr
	Args() ir.Expr
	fmt.Stringer
}

// InstrWire is an IR wire instruction kept as is.
type InstrWire struct {
	ir.InstrWire
}

// NewWire copies w into the asm form.
func NewWire(w *ir.InstrWire) *InstrWire {
	return &InstrWire{InstrWire: *w.Clone().(*ir.InstrWire)}
}

func (*InstrWire) isAsm() {}

// InstrAsm invokes the target pattern named Op.
type InstrAsm struct {
	Op   string
	Dst  ir.Expr
	Attr ir.Expr
	Arg  ir.Expr
	Loc  Loc
}

func (*InstrAsm) isAsm()           {}
func (i *InstrAsm) Dests() ir.Expr { return i.Dst }
func (i *InstrAsm) Args() ir.Expr  { return i.Arg }

func (i *InstrAsm) String() string {
	return fmt.Sprintf("%s = %s%s%s %s", i.Dst, i.Op, ir.AttrString(i.Attr), ir.ArgString(i.Arg), i.Loc)
}

// Prog is a single selected definition.
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

// Clone deep-copies the program.
func (p *Prog) Clone() *Prog {
	out := &Prog{Sig: p.Sig.Clone(), Body: make([]Instr, 0, len(p.Body))}
	for _, instr := range p.Body {
		switch in := instr.(type) {
		case *InstrWire:
			out.Body = append(out.Body, NewWire(&in.InstrWire))
		case *InstrAsm:
			c := *in
			c.Dst, c.Attr, c.Arg = in.Dst.Clone(), in.Attr.Clone(), in.Arg.Clone()
			out.Body = append(out.Body, &c)
		}
	}
	return out
}
