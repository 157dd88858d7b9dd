package isel

import (
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/target"
)

// maxLutInputs is the widest LUT on the device.
const maxLutInputs = 6

// lutTable computes the truth table of a LUT pattern that acts bit by bit
// on its inputs. Entry k of the table is the output when input j carries
// bit j of k.
func lutTable(pat *target.Pat) (uint64, bool, error) {
	n := pat.Sig.Input.Len()
	if pat.Prim != ir.PrimLut || n == 0 || n > maxLutInputs || !bitwise(pat) {
		return 0, false, nil
	}
	def := pat.Def().Clone()
	if err := def.SortBody(); err != nil {
		return 0, false, err
	}
	out, err := pat.Output()
	if err != nil {
		return 0, false, err
	}
	var table uint64
	for k := 0; k < 1<<n; k++ {
		vals := make(map[string]uint64, n+len(def.Body))
		for j, t := range def.Sig.Input.Terms {
			vals[t.ID] = uint64(k>>j) & 1
		}
		for _, instr := range def.Body {
			v, err := evalBit(instr, vals)
			if err != nil {
				return 0, false, diag.At(diag.ConversionError, pat.Sig.ID, "%v", err)
			}
			vals[instr.Dests().Terms[0].ID] = v
		}
		if vals[out.ID]&1 == 1 {
			table |= 1 << k
		}
	}
	return table, true, nil
}

// bitwise holds when every op is a bitwise logic op, or when every value
// is a single bit and nothing holds state.
func bitwise(pat *target.Pat) bool {
	logic, bits := true, true
	for _, t := range pat.Sig.Input.Terms {
		bits = bits && t.Ty.IsBool()
	}
	for _, instr := range pat.Body {
		for _, t := range instr.Dests().Terms {
			bits = bits && t.Ty.IsBool()
		}
		switch in := instr.(type) {
		case *ir.InstrComp:
			switch in.Op {
			case ir.CompAnd, ir.CompOr, ir.CompXor, ir.CompNot, ir.CompMux:
			default:
				logic = false
			}
			if in.Op.IsSequential() || in.Op == ir.CompRam || in.Op == ir.CompRom {
				return false
			}
		case *ir.InstrWire:
			if in.Op != ir.WireID {
				logic = false
			}
		default:
			return false
		}
	}
	return logic || bits
}

func evalBit(instr ir.Instr, vals map[string]uint64) (uint64, error) {
	args := make([]uint64, 0, instr.Args().Len())
	for _, t := range instr.Args().Terms {
		args = append(args, vals[t.ID]&1)
	}
	arg := func(i int) uint64 {
		if i < len(args) {
			return args[i]
		}
		return 0
	}
	b := func(c bool) uint64 {
		if c {
			return 1
		}
		return 0
	}
	switch instr.Name() {
	case "id":
		return arg(0), nil
	case "const":
		attr := ir.AttrOf(instr)
		if attr.Len() == 0 || !attr.Terms[0].IsVal() {
			return 0, diag.Errorf(diag.ConversionError, "const without a value")
		}
		return uint64(attr.Terms[0].Val) & 1, nil
	case "and":
		return arg(0) & arg(1), nil
	case "or":
		return arg(0) | arg(1), nil
	case "xor":
		return arg(0) ^ arg(1), nil
	case "not":
		return arg(0) ^ 1, nil
	case "mux":
		if arg(0) == 1 {
			return arg(1), nil
		}
		return arg(2), nil
	case "eq":
		return b(arg(0) == arg(1)), nil
	case "neq":
		return b(arg(0) != arg(1)), nil
	case "gt":
		return b(arg(0) > arg(1)), nil
	case "lt":
		return b(arg(0) < arg(1)), nil
	case "ge":
		return b(arg(0) >= arg(1)), nil
	case "le":
		return b(arg(0) <= arg(1)), nil
	case "add":
		return (arg(0) + arg(1)) & 1, nil
	case "sub":
		return (arg(0) - arg(1)) & 1, nil
	case "mul":
		return arg(0) & arg(1), nil
	}
	return 0, diag.Errorf(diag.ConversionError, "%s has no single bit form", instr.Name())
}
