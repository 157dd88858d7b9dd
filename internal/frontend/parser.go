package frontend

import (
	"strconv"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/ir"
)

// rawDef is a definition before its instructions are interpreted in a
// particular language.
type rawDef struct {
	at     token
	header *rawHeader
	sig    ir.Sig
	body   []rawInstr
}

type rawHeader struct {
	prim      ir.Prim
	area, lat uint64
}

type rawInstr struct {
	at   token
	dst  ir.Expr
	op   string
	attr ir.Expr
	arg  ir.Expr
	loc  *rawLoc
}

type rawLoc struct {
	at     token
	name   string
	coords bool
	x, y   asm.ExprCoord
}

type parser struct {
	toks []token
	pos  int
}

func newParser(src string) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokArrow || t.kind == tokIdent) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) (token, error) {
	t := p.peek()
	if !p.is(text) {
		return t, errorAt(t, "expected %q, found %s", text, t)
	}
	return p.next(), nil
}

func (p *parser) ident() (token, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return t, errorAt(t, "expected identifier, found %s", t)
	}
	return p.next(), nil
}

func (p *parser) number() (token, error) {
	t := p.peek()
	if t.kind != tokNum {
		return t, errorAt(t, "expected number, found %s", t)
	}
	return p.next(), nil
}

func errorAt(t token, format string, args ...any) error {
	return diag.Errorf(diag.ParseError, t.pos()+": "+format, args...)
}

// defs parses every definition up to the end of input. withHeader selects
// the target description form "def NAME: prim, area, lat (...)".
func (p *parser) defs(withHeader bool) ([]rawDef, error) {
	var out []rawDef
	for p.peek().kind != tokEOF {
		d, err := p.def(withHeader)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *parser) def(withHeader bool) (rawDef, error) {
	at, err := p.expect("def")
	if err != nil {
		return rawDef{}, err
	}
	name, err := p.ident()
	if err != nil {
		return rawDef{}, err
	}
	d := rawDef{at: at, sig: ir.Sig{ID: name.text}}
	if withHeader {
		if d.header, err = p.header(); err != nil {
			return rawDef{}, err
		}
	}
	if d.sig.Input, err = p.ports(); err != nil {
		return rawDef{}, err
	}
	if _, err := p.expect("->"); err != nil {
		return rawDef{}, err
	}
	if d.sig.Output, err = p.ports(); err != nil {
		return rawDef{}, err
	}
	if _, err := p.expect("{"); err != nil {
		return rawDef{}, err
	}
	for !p.accept("}") {
		instr, err := p.instr()
		if err != nil {
			return rawDef{}, err
		}
		d.body = append(d.body, instr)
	}
	return d, nil
}

func (p *parser) header() (*rawHeader, error) {
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}
	h := &rawHeader{}
	var err error
	if h.prim, err = p.prim(); err != nil {
		return nil, err
	}
	if _, err := p.expect(","); err != nil {
		return nil, err
	}
	area, err := p.number()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(","); err != nil {
		return nil, err
	}
	lat, err := p.number()
	if err != nil {
		return nil, err
	}
	h.area, h.lat = uint64(area.val), uint64(lat.val)
	return h, nil
}

func (p *parser) prim() (ir.Prim, error) {
	t := p.next()
	if t.kind == tokAny {
		return ir.PrimAny, nil
	}
	prim, ok := ir.ParsePrim(t.text)
	if t.kind != tokIdent || !ok {
		return 0, errorAt(t, "expected primitive, found %s", t)
	}
	return prim, nil
}

// ports parses "(id:ty, ...)".
func (p *parser) ports() (ir.Expr, error) {
	e := ir.Expr{Tup: true}
	if _, err := p.expect("("); err != nil {
		return e, err
	}
	for !p.accept(")") {
		if len(e.Terms) > 0 {
			if _, err := p.expect(","); err != nil {
				return e, err
			}
		}
		term, err := p.port()
		if err != nil {
			return e, err
		}
		e.Terms = append(e.Terms, term)
	}
	return e, nil
}

func (p *parser) port() (ir.ExprTerm, error) {
	id, err := p.ident()
	if err != nil {
		return ir.ExprTerm{}, err
	}
	if _, err := p.expect(":"); err != nil {
		return ir.ExprTerm{}, err
	}
	ty, err := p.ty()
	if err != nil {
		return ir.ExprTerm{}, err
	}
	return ir.VarTerm(id.text, ty), nil
}

func (p *parser) ty() (ir.Ty, error) {
	t := p.next()
	if t.kind == tokAny {
		return ir.AnyTy(), nil
	}
	if t.kind != tokIdent {
		return ir.Ty{}, errorAt(t, "expected type, found %s", t)
	}
	var ty ir.Ty
	switch {
	case t.text == "bool":
		ty = ir.BoolTy()
	case len(t.text) > 1 && (t.text[0] == 'u' || t.text[0] == 'i'):
		w, err := strconv.ParseUint(t.text[1:], 10, 64)
		if err != nil {
			return ir.Ty{}, errorAt(t, "expected type, found %s", t)
		}
		if t.text[0] == 'u' {
			ty = ir.UInt(w)
		} else {
			ty = ir.SInt(w)
		}
	default:
		return ir.Ty{}, errorAt(t, "expected type, found %s", t)
	}
	if p.accept("<") {
		n, err := p.number()
		if err != nil {
			return ir.Ty{}, err
		}
		if _, err := p.expect(">"); err != nil {
			return ir.Ty{}, err
		}
		ty = ir.Vec(ty, uint64(n.val))
	}
	if err := ty.Validate(); err != nil {
		return ir.Ty{}, errorAt(t, "%v", err)
	}
	return ty, nil
}

// instr parses "dst = op[attr](args) @loc;".
func (p *parser) instr() (rawInstr, error) {
	in := rawInstr{at: p.peek(), attr: ir.Expr{Tup: true}, arg: ir.Expr{Tup: true}}
	var err error
	if p.is("(") {
		in.dst, err = p.ports()
	} else {
		var term ir.ExprTerm
		term, err = p.port()
		in.dst = ir.Term(term)
	}
	if err != nil {
		return in, err
	}
	if _, err := p.expect("="); err != nil {
		return in, err
	}
	op, err := p.ident()
	if err != nil {
		return in, err
	}
	in.op = op.text
	if p.accept("[") {
		for !p.accept("]") {
			if len(in.attr.Terms) > 0 {
				if _, err := p.expect(","); err != nil {
					return in, err
				}
			}
			t := p.next()
			switch {
			case t.kind == tokNum:
				in.attr.Terms = append(in.attr.Terms, ir.ValTerm(t.val))
			case t.kind == tokIdent && t.text == "_":
				in.attr.Terms = append(in.attr.Terms, ir.AnyTerm())
			default:
				return in, errorAt(t, "expected attribute value, found %s", t)
			}
		}
	}
	if _, err := p.expect("("); err != nil {
		return in, err
	}
	for !p.accept(")") {
		if len(in.arg.Terms) > 0 {
			if _, err := p.expect(","); err != nil {
				return in, err
			}
		}
		t, err := p.ident()
		if err != nil {
			return in, err
		}
		if t.text == "_" {
			in.arg.Terms = append(in.arg.Terms, ir.AnyTerm())
			continue
		}
		ty := ir.AnyTy()
		if p.accept(":") {
			if ty, err = p.ty(); err != nil {
				return in, err
			}
		}
		in.arg.Terms = append(in.arg.Terms, ir.VarTerm(t.text, ty))
	}
	if p.accept("@") {
		if in.loc, err = p.loc(); err != nil {
			return in, err
		}
	}
	if _, err := p.expect(";"); err != nil {
		return in, err
	}
	return in, nil
}

func (p *parser) loc() (*rawLoc, error) {
	t := p.next()
	if t.kind != tokIdent && t.kind != tokAny {
		return nil, errorAt(t, "expected location, found %s", t)
	}
	l := &rawLoc{at: t, name: t.text, x: asm.CoordAny{}, y: asm.CoordAny{}}
	if !p.accept("(") {
		return l, nil
	}
	l.coords = true
	var err error
	if l.x, err = p.coord(); err != nil {
		return nil, err
	}
	if _, err := p.expect(","); err != nil {
		return nil, err
	}
	if l.y, err = p.coord(); err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return l, nil
}

// coord parses "term (+ term)*", folding to the left.
func (p *parser) coord() (asm.ExprCoord, error) {
	c, err := p.coordTerm()
	if err != nil {
		return nil, err
	}
	for p.accept("+") {
		rhs, err := p.coordTerm()
		if err != nil {
			return nil, err
		}
		c = asm.CoordAdd{Lhs: c, Rhs: rhs}
	}
	return c, nil
}

func (p *parser) coordTerm() (asm.ExprCoord, error) {
	t := p.next()
	switch {
	case t.kind == tokAny:
		return asm.CoordAny{}, nil
	case t.kind == tokNum && t.val >= 0:
		return asm.CoordVal{Val: uint64(t.val)}, nil
	case t.kind == tokIdent:
		return asm.CoordVar{Name: t.text}, nil
	}
	return nil, errorAt(t, "expected coordinate, found %s", t)
}

func (in rawInstr) noLoc() error {
	if in.loc != nil {
		return errorAt(in.loc.at, "%s takes no location", in.op)
	}
	return nil
}

func (in rawInstr) noAttr() error {
	if !in.attr.IsEmpty() {
		return errorAt(in.at, "%s takes no attributes", in.op)
	}
	return nil
}

// checkIO rejects wildcards in destinations and operands of programs.
func checkIO(in rawInstr) error {
	for _, e := range []ir.Expr{in.dst, in.arg} {
		for _, t := range e.Terms {
			if !t.IsVar() {
				return errorAt(in.at, "wildcard in operand position of %s", in.op)
			}
		}
	}
	return nil
}
