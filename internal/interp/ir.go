package interp

import (
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/logger"
)

// stepper evaluates one cycle: it maps the inputs of the cycle to every
// value computed in it and advances the state.
type stepper interface {
	step(inputs map[string]Value) (map[string]Value, error)
}

// run drives s over every cycle of in and collects the outputs of sig.
func run(sig ir.Sig, in *Trace, s stepper) (*Trace, error) {
	steps := in.Steps()
	if steps == 0 {
		steps = 1
	}
	for _, t := range sig.Input.Terms {
		vs, ok := in.Values(t.ID)
		if !ok {
			return nil, diag.At(diag.UndefinedID, t.ID, "input missing from trace")
		}
		if len(vs) != steps {
			return nil, diag.At(diag.TypeError, t.ID, "trace has %d values, want %d", len(vs), steps)
		}
		for _, v := range vs {
			if uint64(len(v)) != t.Ty.Length() {
				return nil, diag.At(diag.TypeError, t.ID, "value %v does not fit %s", v, t.Ty)
			}
		}
	}
	logger.Debug("interpreting", "def", sig.ID, "steps", steps)
	out := NewTrace()
	for k := 0; k < steps; k++ {
		inputs := make(map[string]Value, sig.Input.Len())
		for _, t := range sig.Input.Terms {
			vs, _ := in.Values(t.ID)
			inputs[t.ID] = normValue(t.Ty, vs[k])
		}
		env, err := s.step(inputs)
		if err != nil {
			return nil, err
		}
		for _, t := range sig.Output.Terms {
			v, ok := env[t.ID]
			if !ok {
				return nil, diag.At(diag.UndefinedID, t.ID, "output never computed")
			}
			out.Append(t.ID, v, t.Ty.IsVector())
		}
	}
	return out, nil
}

// RunIR interprets def over the cycles of in. Registers sample at the end
// of each cycle, so a reg output shows its previous input. Calls must be
// inlined beforehand.
func RunIR(def *ir.Def, in *Trace) (*Trace, error) {
	m, err := newMachine(def)
	if err != nil {
		return nil, err
	}
	return run(def.Sig, in, m)
}

type machine struct {
	body  []ir.Instr
	types map[string]ir.Ty
	state map[string]Value
	mems  map[string][]int64
}

func newMachine(def *ir.Def) (*machine, error) {
	sorted := def.Clone()
	if err := sorted.SortBody(); err != nil {
		return nil, err
	}
	m := &machine{
		body:  sorted.Body,
		types: sorted.Env(),
		state: make(map[string]Value),
		mems:  make(map[string][]int64),
	}
	for _, instr := range m.body {
		switch in := instr.(type) {
		case *ir.InstrCall:
			id, _ := in.Dst.ID(0)
			return nil, diag.At(diag.ConversionError, id, "call to %s must be inlined before interpretation", in.Op)
		case *ir.InstrComp:
			dst, err := in.Dst.ID(0)
			if err != nil {
				return nil, err
			}
			ty := m.types[dst]
			switch in.Op {
			case ir.CompReg:
				m.state[dst] = splat(ty, vals(in.Attr))
			case ir.CompSrom, ir.CompSram:
				m.state[dst] = splat(ty, nil)
				m.mems[dst] = normValue(ty, vals(in.Attr))
			case ir.CompRom, ir.CompRam:
				m.mems[dst] = normValue(ty, vals(in.Attr))
			}
		}
	}
	return m, nil
}

func vals(e ir.Expr) []int64 {
	out := make([]int64, 0, e.Len())
	for _, t := range e.Terms {
		out = append(out, t.Val)
	}
	return out
}

func (m *machine) step(inputs map[string]Value) (map[string]Value, error) {
	env := make(map[string]Value, len(inputs)+len(m.body))
	for id, v := range inputs {
		env[id] = v
	}
	for id, v := range m.state {
		env[id] = v
	}
	for _, instr := range m.body {
		if ir.IsSequential(instr) {
			continue
		}
		dst, err := instr.Dests().ID(0)
		if err != nil {
			return nil, err
		}
		args, err := operands(env, instr.Args())
		if err != nil {
			return nil, err
		}
		var v Value
		switch in := instr.(type) {
		case *ir.InstrWire:
			v, err = m.wire(in, dst, args)
		case *ir.InstrComp:
			v, err = m.comp(in, dst, args)
		}
		if err != nil {
			return nil, err
		}
		env[dst] = v
	}
	return env, m.commit(env)
}

// commit samples registers and performs memory writes.
func (m *machine) commit(env map[string]Value) error {
	next := make(map[string]Value, len(m.state))
	for _, instr := range m.body {
		in, ok := instr.(*ir.InstrComp)
		if !ok {
			continue
		}
		dst, _ := in.Dst.ID(0)
		args, err := operands(env, in.Arg)
		if err != nil {
			return err
		}
		switch in.Op {
		case ir.CompReg:
			if args[1][0] != 0 {
				next[dst] = args[0]
			}
		case ir.CompSrom, ir.CompSram:
			v, err := m.read(dst, args[0])
			if err != nil {
				return err
			}
			next[dst] = v
		}
		if in.Op == ir.CompRam || in.Op == ir.CompSram {
			if args[2][0] != 0 {
				addr := args[0][0]
				if addr < 0 || addr >= int64(len(m.mems[dst])) {
					return diag.At(diag.ConversionError, dst, "write address %d out of range", addr)
				}
				m.mems[dst][addr] = args[1][0]
			}
		}
	}
	for id, v := range next {
		m.state[id] = v
	}
	return nil
}

func (m *machine) read(dst string, addr Value) (Value, error) {
	mem := m.mems[dst]
	if addr[0] < 0 || addr[0] >= int64(len(mem)) {
		return nil, diag.At(diag.ConversionError, dst, "read address %d out of range", addr[0])
	}
	return Value{mem[addr[0]]}, nil
}

func operands(env map[string]Value, e ir.Expr) ([]Value, error) {
	out := make([]Value, 0, e.Len())
	for _, t := range e.Terms {
		v, ok := env[t.ID]
		if !ok {
			return nil, diag.At(diag.UndefinedID, t.ID, "value not available")
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *machine) wire(in *ir.InstrWire, dst string, args []Value) (Value, error) {
	ty := m.types[dst]
	switch in.Op {
	case ir.WireID:
		return args[0], nil
	case ir.WireConst:
		return splat(ty, vals(in.Attr)), nil
	case ir.WireSll, ir.WireSrl, ir.WireSra:
		argTy := m.types[in.Arg.Terms[0].ID]
		return Value{shift(in.Op, argTy, ty, args[0][0], uint64(in.Attr.Terms[0].Val))}, nil
	case ir.WireExt:
		argTy := m.types[in.Arg.Terms[0].ID]
		lo := uint64(in.Attr.Terms[0].Val)
		hi := lo
		if in.Attr.Len() > 1 {
			hi = uint64(in.Attr.Terms[1].Val)
		}
		return Value{extract(argTy, ty, args[0][0], lo, hi)}, nil
	case ir.WireCat:
		tys := make([]ir.Ty, 0, len(args))
		for _, t := range in.Arg.Terms {
			tys = append(tys, m.types[t.ID])
		}
		return Value{concat(tys, ty, args)}, nil
	}
	return nil, diag.At(diag.ConversionError, dst, "unknown wire op %s", in.Op)
}

func shift(op ir.OpWire, argTy, ty ir.Ty, v int64, k uint64) int64 {
	switch op {
	case ir.WireSll:
		return norm(ty, int64(bits(argTy, v)<<k))
	case ir.WireSrl:
		return norm(ty, int64(bits(argTy, v)>>k))
	}
	signed := argTy
	signed.Kind = ir.TySInt
	return norm(ty, norm(signed, v)>>k)
}

func extract(argTy, ty ir.Ty, v int64, lo, hi uint64) int64 {
	return norm(ty, int64((bits(argTy, v)>>lo)&mask(hi-lo+1)))
}

// concat packs args with the first operand in the low bits.
func concat(tys []ir.Ty, ty ir.Ty, args []Value) int64 {
	var acc uint64
	var off uint64
	for i, a := range args {
		acc |= bits(tys[i], a[0]) << off
		off += tys[i].Width
	}
	return norm(ty, int64(acc))
}

func (m *machine) comp(in *ir.InstrComp, dst string, args []Value) (Value, error) {
	ty := m.types[dst]
	switch in.Op {
	case ir.CompRom, ir.CompRam:
		return m.read(dst, args[0])
	case ir.CompMux:
		if args[0][0] != 0 {
			return args[1], nil
		}
		return args[2], nil
	case ir.CompNot:
		return lanes(ty, args, func(a []int64) int64 { return ^a[0] }), nil
	case ir.CompEq, ir.CompNeq, ir.CompGt, ir.CompLt, ir.CompGe, ir.CompLe:
		argTy := m.types[in.Arg.Terms[0].ID]
		return Value{compare(in.Op, argTy, args[0][0], args[1][0])}, nil
	}
	f, ok := arith[in.Op]
	if !ok {
		return nil, diag.At(diag.ConversionError, dst, "cannot evaluate %s", in.Op)
	}
	return lanes(ty, args, f), nil
}

var arith = map[ir.OpComp]func([]int64) int64{
	ir.CompAdd: func(a []int64) int64 { return a[0] + a[1] },
	ir.CompSub: func(a []int64) int64 { return a[0] - a[1] },
	ir.CompMul: func(a []int64) int64 { return a[0] * a[1] },
	ir.CompAnd: func(a []int64) int64 { return a[0] & a[1] },
	ir.CompOr:  func(a []int64) int64 { return a[0] | a[1] },
	ir.CompXor: func(a []int64) int64 { return a[0] ^ a[1] },
}

// lanes applies f element-wise and wraps the results into ty.
func lanes(ty ir.Ty, args []Value, f func([]int64) int64) Value {
	out := make(Value, ty.Length())
	ops := make([]int64, len(args))
	for i := range out {
		for j, a := range args {
			ops[j] = a[i]
		}
		out[i] = norm(ty.Scalar(), f(ops))
	}
	return out
}

func compare(op ir.OpComp, ty ir.Ty, a, b int64) int64 {
	var r bool
	if ty.IsSigned() {
		r = cmpOp(op, a, b)
	} else {
		r = cmpOp(op, bits(ty, a), bits(ty, b))
	}
	if r {
		return 1
	}
	return 0
}

func cmpOp[T int64 | uint64](op ir.OpComp, a, b T) bool {
	switch op {
	case ir.CompEq:
		return a == b
	case ir.CompNeq:
		return a != b
	case ir.CompGt:
		return a > b
	case ir.CompLt:
		return a < b
	case ir.CompGe:
		return a >= b
	}
	return a <= b
}
