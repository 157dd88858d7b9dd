package frontend

import (
	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/target"
	"reticle/internal/xir"
)

// ParseIR parses an IR program and types every operand. Definitions must
// have unique names.
func ParseIR(src string) (*ir.Prog, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	raws, err := p.defs(false)
	if err != nil {
		return nil, err
	}
	prog := ir.NewProg()
	for _, raw := range raws {
		if _, dup := prog.Defs[raw.sig.ID]; dup {
			return nil, errorAt(raw.at, "duplicate definition %s", raw.sig.ID)
		}
		def, err := irDef(raw, false)
		if err != nil {
			return nil, err
		}
		if err := def.InferTypes(); err != nil {
			return nil, err
		}
		prog.Add(def)
	}
	return prog, nil
}

func irDef(raw rawDef, wildcards bool) (*ir.Def, error) {
	def := &ir.Def{Sig: raw.sig}
	for _, in := range raw.body {
		instr, err := irInstr(in, wildcards)
		if err != nil {
			return nil, err
		}
		def.Body = append(def.Body, instr)
	}
	return def, nil
}

func irInstr(in rawInstr, wildcards bool) (ir.Instr, error) {
	if err := checkIO(in); err != nil {
		return nil, err
	}
	if !wildcards {
		for _, t := range in.attr.Terms {
			if t.IsAny() {
				return nil, errorAt(in.at, "wildcard attribute outside a target description")
			}
		}
	}
	if op, ok := ir.ParseOpWire(in.op); ok {
		if err := in.noLoc(); err != nil {
			return nil, err
		}
		return &ir.InstrWire{Op: op, Dst: in.dst, Attr: in.attr, Arg: in.arg}, nil
	}
	if op, ok := ir.ParseOpComp(in.op); ok {
		prim := ir.PrimAny
		if in.loc != nil {
			if in.loc.coords {
				return nil, errorAt(in.loc.at, "compute instructions take a primitive, not coordinates")
			}
			var ok bool
			if prim, ok = ir.ParsePrim(in.loc.name); !ok {
				return nil, errorAt(in.loc.at, "unknown primitive %q", in.loc.name)
			}
		}
		return &ir.InstrComp{Op: op, Dst: in.dst, Attr: in.attr, Arg: in.arg, Prim: prim}, nil
	}
	if err := in.noAttr(); err != nil {
		return nil, err
	}
	if err := in.noLoc(); err != nil {
		return nil, err
	}
	return &ir.InstrCall{Op: in.op, Dst: in.dst, Arg: in.arg}, nil
}

// ParsePats parses pattern definitions, which use IR bodies and may carry
// attribute wildcards.
func ParsePats(src string) ([]*target.Pat, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	raws, err := p.defs(true)
	if err != nil {
		return nil, err
	}
	var pats []*target.Pat
	for _, raw := range raws {
		def, err := irDef(raw, true)
		if err != nil {
			return nil, err
		}
		for _, instr := range def.Body {
			if _, ok := instr.(*ir.InstrCall); ok {
				return nil, diag.At(diag.ParseError, raw.sig.ID, "patterns cannot call %s", instr.Name())
			}
		}
		if err := def.InferTypes(); err != nil {
			return nil, err
		}
		pats = append(pats, &target.Pat{Header: header(raw), Body: def.Body})
	}
	return pats, nil
}

// ParseImps parses implementation definitions with xir bodies.
func ParseImps(src string) ([]*target.Imp, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	raws, err := p.defs(true)
	if err != nil {
		return nil, err
	}
	var imps []*target.Imp
	for _, raw := range raws {
		body, err := xirBody(raw, true)
		if err != nil {
			return nil, err
		}
		imps = append(imps, &target.Imp{Header: header(raw), Body: body})
	}
	return imps, nil
}

// ParseTarget parses a pattern file and an implementation file into a
// checked target description.
func ParseTarget(patSrc, impSrc string) (*target.Target, error) {
	pats, err := ParsePats(patSrc)
	if err != nil {
		return nil, err
	}
	imps, err := ParseImps(impSrc)
	if err != nil {
		return nil, err
	}
	t := target.New()
	for _, pat := range pats {
		if err := t.AddPat(pat); err != nil {
			return nil, err
		}
	}
	for _, imp := range imps {
		if err := t.AddImp(imp); err != nil {
			return nil, err
		}
	}
	if err := t.Check(); err != nil {
		return nil, err
	}
	return t, nil
}

func header(raw rawDef) target.Header {
	return target.Header{Sig: raw.sig, Prim: raw.header.prim, Area: raw.header.area, Lat: raw.header.lat}
}

// ParseAsm parses a single assembly definition.
func ParseAsm(src string) (*asm.Prog, error) {
	raw, err := single(src)
	if err != nil {
		return nil, err
	}
	prog := &asm.Prog{Sig: raw.sig}
	for _, in := range raw.body {
		if err := checkIO(in); err != nil {
			return nil, err
		}
		if op, ok := ir.ParseOpWire(in.op); ok {
			if err := in.noLoc(); err != nil {
				return nil, err
			}
			prog.Body = append(prog.Body, &asm.InstrWire{InstrWire: ir.InstrWire{Op: op, Dst: in.dst, Attr: in.attr, Arg: in.arg}})
			continue
		}
		if in.loc == nil {
			return nil, errorAt(in.at, "%s needs a location", in.op)
		}
		prim, ok := ir.ParsePrim(in.loc.name)
		if !ok {
			return nil, errorAt(in.loc.at, "unknown primitive %q", in.loc.name)
		}
		prog.Body = append(prog.Body, &asm.InstrAsm{
			Op:   in.op,
			Dst:  in.dst,
			Attr: in.attr,
			Arg:  in.arg,
			Loc:  asm.Loc{Prim: prim, X: in.loc.x, Y: in.loc.y},
		})
	}
	if err := ir.InferTypes(prog.Sig, prog.Body); err != nil {
		return nil, err
	}
	return prog, nil
}

// ParseXir parses a single definition of target primitives.
func ParseXir(src string) (*xir.Prog, error) {
	raw, err := single(src)
	if err != nil {
		return nil, err
	}
	body, err := xirBody(raw, false)
	if err != nil {
		return nil, err
	}
	return &xir.Prog{Sig: raw.sig, Body: body}, nil
}

func xirBody(raw rawDef, wildcards bool) ([]xir.Instr, error) {
	var body []xir.Instr
	for _, in := range raw.body {
		if err := checkIO(in); err != nil {
			return nil, err
		}
		if !wildcards {
			for _, t := range in.attr.Terms {
				if t.IsAny() {
					return nil, errorAt(in.at, "wildcard attribute outside a target description")
				}
			}
		}
		if op, ok := xir.ParseOpBasc(in.op); ok {
			if err := in.noLoc(); err != nil {
				return nil, err
			}
			body = append(body, &xir.InstrBasc{Op: op, Dst: in.dst, Attr: in.attr, Arg: in.arg})
			continue
		}
		op, ok := xir.ParseOpMach(in.op)
		if !ok {
			return nil, errorAt(in.at, "unknown primitive op %q", in.op)
		}
		mach := &xir.InstrMach{Op: op, Dst: in.dst, Attr: in.attr, Arg: in.arg}
		if in.loc != nil {
			bel, ok := xir.ParseBel(in.loc.name)
			if !ok {
				return nil, errorAt(in.loc.at, "unknown bel %q", in.loc.name)
			}
			mach.Loc = &xir.Loc{Bel: bel, X: in.loc.x, Y: in.loc.y}
		}
		body = append(body, mach)
	}
	if err := ir.InferTypes(raw.sig, body); err != nil {
		return nil, err
	}
	return body, nil
}

func single(src string) (rawDef, error) {
	p, err := newParser(src)
	if err != nil {
		return rawDef{}, err
	}
	raws, err := p.defs(false)
	if err != nil {
		return rawDef{}, err
	}
	if len(raws) != 1 {
		return rawDef{}, diag.Errorf(diag.ParseError, "expected exactly one definition, found %d", len(raws))
	}
	return raws[0], nil
}
