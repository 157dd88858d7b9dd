package interp

import (
	"strings"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/xir"
)

// RunXir interprets an assembled program with the semantics of the target
// primitives: LUT truth tables, flip-flops, CARRY8 chains and DSP slices.
// Registered DSP variants hold zero until their first enabled cycle.
func RunXir(prog *xir.Prog, in *Trace) (*Trace, error) {
	body, err := order(prog.Sig, prog.Body)
	if err != nil {
		return nil, err
	}
	m := &xirMachine{body: body, types: make(map[string]ir.Ty), state: make(map[string]Value)}
	for _, t := range prog.Sig.Input.Terms {
		m.types[t.ID] = t.Ty
	}
	for _, instr := range body {
		dst := instr.Dests().Terms[0]
		m.types[dst.ID] = dst.Ty
		mach, ok := instr.(*xir.InstrMach)
		if !ok {
			continue
		}
		switch {
		case mach.Op.IsMem():
			return nil, diag.At(diag.ConversionError, dst.ID, "%s cannot be interpreted", mach.Op)
		case mach.Op.IsReg():
			m.state[dst.ID] = Value{initBit(mach.Attr)}
		case registered(mach.Op):
			m.state[dst.ID] = splat(dst.Ty, nil)
		}
	}
	return run(prog.Sig, in, m)
}

func registered(op xir.OpMach) bool {
	return op.IsReg() || strings.Contains(op.String(), "rega")
}

func sequential(instr xir.Instr) bool {
	m, ok := instr.(*xir.InstrMach)
	return ok && registered(m.Op)
}

// initBit reads the flip-flop init value from [init, bit] or [init].
func initBit(attr ir.Expr) int64 {
	if attr.Len() == 0 {
		return 0
	}
	v := attr.Terms[0].Val
	if attr.Len() > 1 {
		v >>= uint(attr.Terms[1].Val)
	}
	return v & 1
}

// order sorts body so that operands are computed before use; registered
// instructions read state and are always ready.
func order(sig ir.Sig, body []xir.Instr) ([]xir.Instr, error) {
	ready := set.New[string](len(body))
	for _, t := range sig.Input.Terms {
		ready.Insert(t.ID)
	}
	for _, instr := range body {
		if sequential(instr) {
			ready.Insert(instr.Dests().Terms[0].ID)
		}
	}
	sorted := make([]xir.Instr, 0, len(body))
	pending := body
	for len(pending) > 0 {
		var next []xir.Instr
		for _, instr := range pending {
			if sequential(instr) || allReady(instr.Args(), ready) {
				sorted = append(sorted, instr)
				ready.Insert(instr.Dests().Terms[0].ID)
				continue
			}
			next = append(next, instr)
		}
		if len(next) == len(pending) {
			return nil, diag.At(diag.UndefinedID, next[0].Dests().Terms[0].ID, "operands undefined or combinational loop")
		}
		pending = next
	}
	return sorted, nil
}

func allReady(e ir.Expr, ready *set.Set[string]) bool {
	for _, t := range e.Terms {
		if t.IsVar() && !ready.Contains(t.ID) {
			return false
		}
	}
	return true
}

type xirMachine struct {
	body  []xir.Instr
	types map[string]ir.Ty
	state map[string]Value
}

func (m *xirMachine) step(inputs map[string]Value) (map[string]Value, error) {
	env := make(map[string]Value, len(inputs)+len(m.body))
	for id, v := range inputs {
		env[id] = v
	}
	for id, v := range m.state {
		env[id] = v
	}
	for _, instr := range m.body {
		if sequential(instr) {
			continue
		}
		dst := instr.Dests().Terms[0].ID
		args, err := operands(env, instr.Args())
		if err != nil {
			return nil, err
		}
		var v Value
		switch in := instr.(type) {
		case *xir.InstrBasc:
			v, err = m.basc(in, dst, args)
		case *xir.InstrMach:
			v, err = m.mach(in, dst, args)
		}
		if err != nil {
			return nil, err
		}
		env[dst] = v
	}
	next := make(map[string]Value)
	for _, instr := range m.body {
		if !sequential(instr) {
			continue
		}
		in := instr.(*xir.InstrMach)
		dst := in.Dst.Terms[0].ID
		args, err := operands(env, in.Arg)
		if err != nil {
			return nil, err
		}
		en := int64(1)
		switch {
		case in.Op.IsReg():
			en = args[1][0]
		case in.Op == xir.VecAddRegA || len(args) == 4:
			en = args[len(args)-1][0]
		}
		if en == 0 {
			continue
		}
		if in.Op.IsReg() {
			next[dst] = Value{args[0][0] & 1}
			continue
		}
		v, err := m.dsp(in.Op, dst, args)
		if err != nil {
			return nil, err
		}
		next[dst] = v
	}
	for id, v := range next {
		m.state[id] = v
	}
	return env, nil
}

func (m *xirMachine) basc(in *xir.InstrBasc, dst string, args []Value) (Value, error) {
	ty := m.types[dst]
	switch in.Op {
	case xir.BascGnd:
		return Value{0}, nil
	case xir.BascVcc:
		return Value{1}, nil
	case xir.BascID:
		return args[0], nil
	case xir.BascExt:
		lo := uint64(in.Attr.Terms[0].Val)
		hi := lo
		if in.Attr.Len() > 1 {
			hi = uint64(in.Attr.Terms[1].Val)
		}
		return Value{extract(m.types[in.Arg.Terms[0].ID], ty, args[0][0], lo, hi)}, nil
	case xir.BascCat:
		tys := make([]ir.Ty, 0, len(args))
		for _, t := range in.Arg.Terms {
			tys = append(tys, m.types[t.ID])
		}
		return Value{concat(tys, ty, args)}, nil
	}
	return nil, diag.At(diag.ConversionError, dst, "unknown basic op %s", in.Op)
}

func (m *xirMachine) mach(in *xir.InstrMach, dst string, args []Value) (Value, error) {
	ty := m.types[dst]
	switch {
	case in.Op.IsLut():
		table, err := in.Attr.Val(0)
		if err != nil {
			return nil, diag.At(diag.ConversionError, dst, "missing truth table")
		}
		var idx uint64
		for k, a := range args {
			idx |= uint64(a[0]&1) << k
		}
		return Value{int64((uint64(table) >> idx) & 1)}, nil
	case in.Op.IsCarry():
		return Value{m.carry(in, ty, args)}, nil
	case in.Op.IsDsp():
		return m.dsp(in.Op, dst, args)
	}
	return nil, diag.At(diag.ConversionError, dst, "%s cannot be interpreted", in.Op)
}

// carry models CARRY8: each stage outputs S xor carry and propagates the
// carry when S is set, otherwise DI. carrysub starts with a carry in.
func (m *xirMachine) carry(in *xir.InstrMach, ty ir.Ty, args []Value) int64 {
	di := bits(m.types[in.Arg.Terms[0].ID], args[0][0])
	s := bits(m.types[in.Arg.Terms[1].ID], args[1][0])
	var c uint64
	if in.Op == xir.CarrySub {
		c = 1
	}
	var o uint64
	for i := uint64(0); i < ty.Width; i++ {
		si := (s >> i) & 1
		o |= (si ^ c) << i
		if si == 0 {
			c = (di >> i) & 1
		}
	}
	return norm(ty, int64(o))
}

func (m *xirMachine) dsp(op xir.OpMach, dst string, args []Value) (Value, error) {
	ty := m.types[dst]
	switch op {
	case xir.VecAdd, xir.VecAddRegA:
		return lanes(ty, args[:2], arith[ir.CompAdd]), nil
	case xir.VecSub:
		return lanes(ty, args[:2], arith[ir.CompSub]), nil
	case xir.VecMul, xir.Mul:
		return lanes(ty, args[:2], arith[ir.CompMul]), nil
	}
	if op.IsMulAdd() {
		return lanes(ty, args[:3], func(a []int64) int64 { return a[0]*a[1] + a[2] }), nil
	}
	return nil, diag.At(diag.ConversionError, dst, "%s cannot be interpreted", op)
}
