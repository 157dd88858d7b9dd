package ir

import (
	"fmt"

	"reticle/internal/diag"
)

// TyKind enumerates the type constructors.
type TyKind int

const (
	TyAny TyKind = iota
	TyBool
	TyUInt
	TySInt
	TyVector
)

// Ty is a hardware value type. Vectors record the element kind in Elem and
// the element width in Width.
type Ty struct {
	Kind  TyKind
	Elem  TyKind
	Width uint64
	Len   uint64
}

func AnyTy() Ty            { return Ty{Kind: TyAny} }
func BoolTy() Ty           { return Ty{Kind: TyBool, Width: 1} }
func UInt(width uint64) Ty { return Ty{Kind: TyUInt, Width: width} }
func SInt(width uint64) Ty { return Ty{Kind: TySInt, Width: width} }

// Vec builds a vector of n elements of the scalar type elem.
func Vec(elem Ty, n uint64) Ty {
	return Ty{Kind: TyVector, Elem: elem.Kind, Width: elem.Width, Len: n}
}

func (t Ty) IsAny() bool    { return t.Kind == TyAny }
func (t Ty) IsBool() bool   { return t.Kind == TyBool }
func (t Ty) IsVector() bool { return t.Kind == TyVector }

// IsSigned reports whether the scalar (or element) type is signed.
func (t Ty) IsSigned() bool {
	if t.Kind == TyVector {
		return t.Elem == TySInt
	}
	return t.Kind == TySInt
}

// Scalar returns the element type of a vector, or t itself.
func (t Ty) Scalar() Ty {
	if t.Kind != TyVector {
		return t
	}
	return Ty{Kind: t.Elem, Width: t.Width}
}

// Length is the number of elements, one for scalars.
func (t Ty) Length() uint64 {
	if t.Kind == TyVector {
		return t.Len
	}
	return 1
}

// TotalWidth is the number of bits needed to hold a value of type t.
func (t Ty) TotalWidth() uint64 {
	return t.Width * t.Length()
}

// Validate checks the width and length invariants of t.
func (t Ty) Validate() error {
	switch t.Kind {
	case TyAny:
		return nil
	case TyBool:
		if t.Width != 1 {
			return diag.Errorf(diag.TypeError, "bool must have width 1, got %d", t.Width)
		}
	case TyUInt:
		if t.Width < 1 {
			return diag.Errorf(diag.TypeError, "unsigned width must be positive")
		}
	case TySInt:
		if t.Width < 2 {
			return diag.Errorf(diag.TypeError, "signed width must be at least 2, got %d", t.Width)
		}
	case TyVector:
		if t.Len < 1 {
			return diag.Errorf(diag.TypeError, "vector length must be positive")
		}
		if t.Elem == TyVector || t.Elem == TyAny {
			return diag.Errorf(diag.TypeError, "vector element must be a scalar")
		}
		return t.Scalar().Validate()
	}
	return nil
}

// Prim is the coarse hardware class an instruction is bound to.
type Prim int

const (
	PrimAny Prim = iota
	PrimLut
	PrimDsp
	PrimLram
	PrimBram
	PrimUram
)

var primNames = map[Prim]string{
	PrimAny:  "??",
	PrimLut:  "lut",
	PrimDsp:  "dsp",
	PrimLram: "lram",
	PrimBram: "bram",
	PrimUram: "uram",
}

func (p Prim) String() string { return primNames[p] }

// ParsePrim maps the printed form back to a Prim.
func ParsePrim(s string) (Prim, bool) {
	for p, name := range primNames {
		if name == s {
			return p, true
		}
	}
	return PrimAny, false
}

// TermKind enumerates the term constructors.
type TermKind int

const (
	TermAny TermKind = iota
	TermVal
	TermVar
)

// ExprTerm is a wildcard, a literal value or a typed variable.
type ExprTerm struct {
	Kind TermKind
	Val  int64
	ID   string
	Ty   Ty
}

func AnyTerm() ExprTerm                 { return ExprTerm{Kind: TermAny} }
func ValTerm(v int64) ExprTerm          { return ExprTerm{Kind: TermVal, Val: v} }
func VarTerm(id string, ty Ty) ExprTerm { return ExprTerm{Kind: TermVar, ID: id, Ty: ty} }

func (t ExprTerm) IsAny() bool { return t.Kind == TermAny }
func (t ExprTerm) IsVal() bool { return t.Kind == TermVal }
func (t ExprTerm) IsVar() bool { return t.Kind == TermVar }

// Expr is either a single term or a tuple of terms.
type Expr struct {
	Terms []ExprTerm
	Tup   bool
}

// Term wraps a single term.
func Term(t ExprTerm) Expr { return Expr{Terms: []ExprTerm{t}} }

// Tup builds a tuple expression.
func Tup(terms ...ExprTerm) Expr {
	return Expr{Terms: append([]ExprTerm(nil), terms...), Tup: true}
}

// Vals builds an attribute tuple of literal values.
func Vals(vs ...int64) Expr {
	e := Expr{Tup: true}
	for _, v := range vs {
		e.Terms = append(e.Terms, ValTerm(v))
	}
	return e
}

// Vars builds an I/O tuple, or a single term when exactly one is given.
func Vars(terms ...ExprTerm) Expr {
	if len(terms) == 1 {
		return Term(terms[0])
	}
	return Tup(terms...)
}

func (e Expr) Len() int      { return len(e.Terms) }
func (e Expr) IsEmpty() bool { return len(e.Terms) == 0 }

func (e Expr) Clone() Expr {
	return Expr{Terms: append([]ExprTerm(nil), e.Terms...), Tup: e.Tup}
}

// Term returns the i-th term. A bare term answers index 0.
func (e Expr) Term(i int) (ExprTerm, error) {
	if i < 0 || i >= len(e.Terms) {
		return ExprTerm{}, diag.Errorf(diag.ConversionError, "index %d out of range for %s", i, e)
	}
	return e.Terms[i], nil
}

// ID returns the variable name at position i.
func (e Expr) ID(i int) (string, error) {
	t, err := e.Term(i)
	if err != nil {
		return "", err
	}
	if !t.IsVar() {
		return "", diag.Errorf(diag.ConversionError, "term %s is not a variable", t)
	}
	return t.ID, nil
}

// Ty returns the type of the variable at position i.
func (e Expr) Ty(i int) (Ty, error) {
	t, err := e.Term(i)
	if err != nil {
		return Ty{}, err
	}
	if !t.IsVar() {
		return Ty{}, diag.Errorf(diag.ConversionError, "term %s has no type", t)
	}
	return t.Ty, nil
}

// Val returns the literal value at position i.
func (e Expr) Val(i int) (int64, error) {
	t, err := e.Term(i)
	if err != nil {
		return 0, err
	}
	if !t.IsVal() {
		return 0, diag.Errorf(diag.ConversionError, "term %s is not a value", t)
	}
	return t.Val, nil
}

// IDs returns every variable name, failing on non-variable terms.
func (e Expr) IDs() ([]string, error) {
	ids := make([]string, 0, len(e.Terms))
	for i := range e.Terms {
		id, err := e.ID(i)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CheckIO rejects expressions mixing variables with literal values.
func (e Expr) CheckIO() error {
	for _, t := range e.Terms {
		if t.IsVal() {
			return diag.Errorf(diag.ConversionError, "value %d found in variable position %s", t.Val, e)
		}
	}
	return nil
}

// CheckAttr rejects attribute tuples containing variables.
func (e Expr) CheckAttr() error {
	for _, t := range e.Terms {
		if t.IsVar() {
			return diag.Errorf(diag.ConversionError, "variable %s found in attribute position", t.ID)
		}
	}
	return nil
}

// OpWire enumerates wire operations.
type OpWire int

const (
	WireID OpWire = iota
	WireConst
	WireSll
	WireSrl
	WireSra
	WireExt
	WireCat
)

var wireNames = []string{"id", "const", "sll", "srl", "sra", "ext", "cat"}

func (o OpWire) String() string { return wireNames[o] }

// ParseOpWire looks up a wire operation by name.
func ParseOpWire(s string) (OpWire, bool) {
	for i, name := range wireNames {
		if name == s {
			return OpWire(i), true
		}
	}
	return 0, false
}

// OpComp enumerates compute operations.
type OpComp int

const (
	CompReg OpComp = iota
	CompSram
	CompSrom
	CompRam
	CompRom
	CompAdd
	CompSub
	CompMul
	CompNot
	CompAnd
	CompOr
	CompXor
	CompMux
	CompEq
	CompNeq
	CompGt
	CompLt
	CompGe
	CompLe
)

var compNames = []string{
	"reg", "sram", "srom", "ram", "rom", "add", "sub", "mul", "not", "and",
	"or", "xor", "mux", "eq", "neq", "gt", "lt", "ge", "le",
}

func (o OpComp) String() string { return compNames[o] }

// ParseOpComp looks up a compute operation by name.
func ParseOpComp(s string) (OpComp, bool) {
	for i, name := range compNames {
		if name == s {
			return OpComp(i), true
		}
	}
	return 0, false
}

// IsSequential reports whether the result is held in state across cycles.
func (o OpComp) IsSequential() bool {
	return o == CompReg || o == CompSram || o == CompSrom
}

// IsCompare reports whether the op yields a bool.
func (o OpComp) IsCompare() bool {
	switch o {
	case CompEq, CompNeq, CompGt, CompLt, CompGe, CompLe:
		return true
	}
	return false
}

// IsReserved reports whether name is a wire or compute op, which makes it
// unusable as a call target.
func IsReserved(name string) bool {
	if _, ok := ParseOpWire(name); ok {
		return true
	}
	_, ok := ParseOpComp(name)
	return ok
}

// Instr is implemented by every IR instruction.
type Instr interface {
	isInstr()
	// Name is the printed operation name.
	Name() string
	Dests() Expr
	Args() Expr
	Clone() Instr
	fmt.Stringer
}

// InstrWire is a pure re-wiring.
type InstrWire struct {
	Op   OpWire
	Dst  Expr
	Attr Expr
	Arg  Expr
}

func (*InstrWire) isInstr()       {}
func (i *InstrWire) Name() string { return i.Op.String() }
func (i *InstrWire) Dests() Expr  { return i.Dst }
func (i *InstrWire) Args() Expr   { return i.Arg }
func (i *InstrWire) Clone() Instr {
	return &InstrWire{Op: i.Op, Dst: i.Dst.Clone(), Attr: i.Attr.Clone(), Arg: i.Arg.Clone()}
}

// InstrComp is an operation eligible for tiling.
type InstrComp struct {
	Op   OpComp
	Dst  Expr
	Attr Expr
	Arg  Expr
	Prim Prim
}

func (*InstrComp) isInstr()       {}
func (i *InstrComp) Name() string { return i.Op.String() }
func (i *InstrComp) Dests() Expr  { return i.Dst }
func (i *InstrComp) Args() Expr   { return i.Arg }
func (i *InstrComp) Clone() Instr {
	return &InstrComp{Op: i.Op, Dst: i.Dst.Clone(), Attr: i.Attr.Clone(), Arg: i.Arg.Clone(), Prim: i.Prim}
}

// InstrCall invokes another definition of the program.
type InstrCall struct {
	Op  string
	Dst Expr
	Arg Expr
}

func (*InstrCall) isInstr()       {}
func (i *InstrCall) Name() string { return i.Op }
func (i *InstrCall) Dests() Expr  { return i.Dst }
func (i *InstrCall) Args() Expr   { return i.Arg }
func (i *InstrCall) Clone() Instr {
	return &InstrCall{Op: i.Op, Dst: i.Dst.Clone(), Arg: i.Arg.Clone()}
}

// SetArgs replaces the operands of instr.
func SetArgs(instr Instr, arg Expr) {
	switch in := instr.(type) {
	case *InstrWire:
		in.Arg = arg
	case *InstrComp:
		in.Arg = arg
	case *InstrCall:
		in.Arg = arg
	}
}

// SetDests replaces the destinations of instr.
func SetDests(instr Instr, dst Expr) {
	switch in := instr.(type) {
	case *InstrWire:
		in.Dst = dst
	case *InstrComp:
		in.Dst = dst
	case *InstrCall:
		in.Dst = dst
	}
}

// AttrOf returns the attribute expression of instr (empty for calls).
func AttrOf(instr Instr) Expr {
	switch in := instr.(type) {
	case *InstrWire:
		return in.Attr
	case *InstrComp:
		return in.Attr
	}
	return Expr{}
}

// Sig is the interface of a definition.
type Sig struct {
	ID     string
	Input  Expr
	Output Expr
}

func (s Sig) Clone() Sig {
	return Sig{ID: s.ID, Input: s.Input.Clone(), Output: s.Output.Clone()}
}

// Def is a named definition with an ordered body.
type Def struct {
	Sig  Sig
	Body []Instr
}

func (d *Def) Clone() *Def {
	out := &Def{Sig: d.Sig.Clone(), Body: make([]Instr, 0, len(d.Body))}
	for _, instr := range d.Body {
		out.Body = append(out.Body, instr.Clone())
	}
	return out
}

// Producers maps each destination id to the instruction defining it.
func (d *Def) Producers() map[string]Instr {
	m := make(map[string]Instr)
	for _, instr := range d.Body {
		for _, t := range instr.Dests().Terms {
			if t.IsVar() {
				m[t.ID] = instr
			}
		}
	}
	return m
}

// Env maps every signature input and destination to its declared type.
func (d *Def) Env() map[string]Ty {
	env := make(map[string]Ty)
	for _, t := range d.Sig.Input.Terms {
		if t.IsVar() {
			env[t.ID] = t.Ty
		}
	}
	for _, instr := range d.Body {
		for _, t := range instr.Dests().Terms {
			if t.IsVar() {
				env[t.ID] = t.Ty
			}
		}
	}
	return env
}

// Prog is the set of definitions of a compilation unit.
type Prog struct {
	Defs map[string]*Def
}

// NewProg returns a program holding defs.
func NewProg(defs ...*Def) *Prog {
	p := &Prog{Defs: make(map[string]*Def)}
	for _, d := range defs {
		p.Add(d)
	}
	return p
}

// Add inserts or replaces a definition.
func (p *Prog) Add(d *Def) {
	if p.Defs == nil {
		p.Defs = make(map[string]*Def)
	}
	p.Defs[d.Sig.ID] = d
}

// Main returns the entry definition.
func (p *Prog) Main() (*Def, error) {
	if d, ok := p.Defs["main"]; ok {
		return d, nil
	}
	return nil, diag.Errorf(diag.UndefinedID, "program has no main definition")
}

func (p *Prog) Clone() *Prog {
	out := NewProg()
	for _, d := range p.Defs {
		out.Add(d.Clone())
	}
	return out
}
