package verilog

import (
	"fmt"
	"strings"

	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/xir"
)

// DSP48E2 parameters with their primitive defaults, all pipeline registers
// bypassed.
var dspParams = []Param{
	{"ACASCREG", "0"},
	{"ADREG", "0"},
	{"ALUMODEREG", "0"},
	{"AMULTSEL", `"A"`},
	{"AREG", "0"},
	{"AUTORESET_PATDET", `"NO_RESET"`},
	{"AUTORESET_PRIORITY", `"RESET"`},
	{"A_INPUT", `"DIRECT"`},
	{"BCASCREG", "0"},
	{"BMULTSEL", `"B"`},
	{"BREG", "0"},
	{"B_INPUT", `"DIRECT"`},
	{"CARRYINREG", "0"},
	{"CARRYINSELREG", "0"},
	{"CREG", "0"},
	{"DREG", "0"},
	{"INMODEREG", "0"},
	{"IS_ALUMODE_INVERTED", "4'b0000"},
	{"IS_CARRYIN_INVERTED", "1'b0"},
	{"IS_CLK_INVERTED", "1'b0"},
	{"IS_INMODE_INVERTED", "5'b00000"},
	{"IS_OPMODE_INVERTED", "9'b000000000"},
	{"IS_RSTALLCARRYIN_INVERTED", "1'b0"},
	{"IS_RSTALUMODE_INVERTED", "1'b0"},
	{"IS_RSTA_INVERTED", "1'b0"},
	{"IS_RSTB_INVERTED", "1'b0"},
	{"IS_RSTCTRL_INVERTED", "1'b0"},
	{"IS_RSTC_INVERTED", "1'b0"},
	{"IS_RSTD_INVERTED", "1'b0"},
	{"IS_RSTINMODE_INVERTED", "1'b0"},
	{"IS_RSTM_INVERTED", "1'b0"},
	{"IS_RSTP_INVERTED", "1'b0"},
	{"MASK", "48'h3fffffffffff"},
	{"MREG", "0"},
	{"OPMODEREG", "0"},
	{"PATTERN", "48'h000000000000"},
	{"PREADDINSEL", `"A"`},
	{"PREG", "0"},
	{"RND", "48'h000000000000"},
	{"SEL_MASK", `"MASK"`},
	{"SEL_PATTERN", `"PATTERN"`},
	{"USE_MULT", `"MULTIPLY"`},
	{"USE_PATTERN_DETECT", `"NO_PATDET"`},
	{"USE_SIMD", `"ONE48"`},
	{"USE_WIDEXOR", `"FALSE"`},
	{"XORSIMD", `"XOR24_48_96"`},
}

// DSP48E2 ports with the values of an idle slice.
var dspConns = []Conn{
	{"A", "30'd0"},
	{"ACIN", "30'd0"},
	{"ALUMODE", "4'b0000"},
	{"B", "18'd0"},
	{"BCIN", "18'd0"},
	{"C", "48'd0"},
	{"CARRYCASCIN", "1'b0"},
	{"CARRYIN", "1'b0"},
	{"CARRYINSEL", "3'b000"},
	{"CEA1", "1'b0"},
	{"CEA2", "1'b0"},
	{"CEAD", "1'b0"},
	{"CEALUMODE", "1'b0"},
	{"CEB1", "1'b0"},
	{"CEB2", "1'b0"},
	{"CEC", "1'b0"},
	{"CECARRYIN", "1'b0"},
	{"CECTRL", "1'b0"},
	{"CED", "1'b0"},
	{"CEINMODE", "1'b0"},
	{"CEM", "1'b0"},
	{"CEP", "1'b0"},
	{"CLK", "clock"},
	{"D", "27'd0"},
	{"INMODE", "5'b00000"},
	{"MULTSIGNIN", "1'b0"},
	{"OPMODE", "9'b000000000"},
	{"PCIN", "48'd0"},
	{"RSTA", "reset"},
	{"RSTALLCARRYIN", "reset"},
	{"RSTALUMODE", "reset"},
	{"RSTB", "reset"},
	{"RSTC", "reset"},
	{"RSTCTRL", "reset"},
	{"RSTD", "reset"},
	{"RSTINMODE", "reset"},
	{"RSTM", "reset"},
	{"RSTP", "reset"},
	{"ACOUT", ""},
	{"BCOUT", ""},
	{"CARRYCASCOUT", ""},
	{"CARRYOUT", ""},
	{"MULTSIGNOUT", ""},
	{"OVERFLOW", ""},
	{"P", ""},
	{"PATTERNBDETECT", ""},
	{"PATTERNDETECT", ""},
	{"PCOUT", ""},
	{"UNDERFLOW", ""},
	{"XOROUT", ""},
}

const (
	dspWidth = 48
	aWidth   = 30
	bWidth   = 18
)

// simd returns the lane width and USE_SIMD mode that fits ty.
func simd(ty ir.Ty) (uint64, string, bool) {
	n := ty.Length()
	switch {
	case n == 1 && ty.Width <= dspWidth:
		return dspWidth, `"ONE48"`, true
	case n <= 2 && ty.Width <= 24:
		return 24, `"TWO24"`, true
	case n <= 4 && ty.Width <= 12:
		return 12, `"FOUR12"`, true
	}
	return 0, "", false
}

// extend widens a packed value to width bits, sign extending when ty is
// signed.
func extend(id string, ty ir.Ty, width uint64) string {
	w := ty.TotalWidth()
	if w >= width {
		return id
	}
	if ty.IsSigned() {
		return fmt.Sprintf("{{%d{%s}}, %s}", width-w, slice(id, w, w-1, w-1), id)
	}
	return fmt.Sprintf("{%d'd0, %s}", width-w, id)
}

// lanes packs every element of a vector into its own SIMD lane of a 48-bit
// word, highest lane first.
func lanes(id string, ty ir.Ty, lane uint64) string {
	count := dspWidth / lane
	parts := make([]string, 0, count)
	for i := count; i > 0; i-- {
		k := i - 1
		if k >= ty.Length() {
			parts = append(parts, fmt.Sprintf("%d'd0", lane))
			continue
		}
		elem := element(id, ty, k)
		pad := lane - ty.Width
		if pad == 0 {
			parts = append(parts, elem)
		} else if ty.IsSigned() {
			parts = append(parts, fmt.Sprintf("{%d{%s}}, %s", pad, slice(id, ty.TotalWidth(), k*ty.Width+ty.Width-1, k*ty.Width+ty.Width-1), elem))
		} else {
			parts = append(parts, fmt.Sprintf("%d'd0, %s", pad, elem))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *structural) dsp(in *xir.InstrMach, dst string, args []string) (*Instance, error) {
	ty, err := in.Dst.Ty(0)
	if err != nil {
		return nil, err
	}
	lane, mode, ok := simd(ty)
	if !ok {
		return nil, diag.At(diag.EmitError, dst, "%s does not fit a DSP48E2", ty)
	}
	inst := &Instance{
		Prim:   "DSP48E2",
		Name:   "__" + dst,
		Params: append([]Param(nil), dspParams...),
		Conns:  append([]Conn(nil), dspConns...),
	}
	inst.setParam("USE_SIMD", mode)
	p := "__" + dst + "_p"
	s.mod.AddDecl(Decl{Name: p, Width: dspWidth})
	inst.setConn("P", p)

	lo, hi := 2, 2
	switch in.Op {
	case xir.VecAddRegA, xir.MulAdd:
		lo, hi = 3, 3
	case xir.MulAddRegA:
		lo, hi = 4, 4
	case xir.MulAddRegACi, xir.MulAddRegACo, xir.MulAddRegACio:
		lo, hi = 3, 4
	}
	if len(args) < lo || len(args) > hi {
		return nil, diag.At(diag.EmitError, dst, "%s expects %d operands, got %d", in.Op, hi, len(args))
	}
	// cascade stages without an enable operand are always enabled
	en := "1'b1"
	if in.Op == xir.VecAddRegA || len(args) == 4 {
		en = args[len(args)-1]
	}

	switch in.Op {
	case xir.VecAdd, xir.VecSub, xir.VecAddRegA:
		a, b := lanes(args[0], s.types[args[0]], lane), lanes(args[1], s.types[args[1]], lane)
		if in.Op == xir.VecSub {
			// Z - (X + Y) with Z = C
			a, b = b, a
			inst.setConn("ALUMODE", "4'b0011")
		}
		ab := "__" + dst + "_ab"
		s.mod.AddDecl(Decl{Name: ab, Width: dspWidth})
		s.mod.Assign(ab, a)
		inst.setConn("A", fmt.Sprintf("%s[47:18]", ab))
		inst.setConn("B", fmt.Sprintf("%s[17:0]", ab))
		inst.setConn("C", b)
		inst.setConn("OPMODE", "9'b000110011")
		inst.setParam("USE_MULT", `"NONE"`)
	case xir.Mul:
		if err := s.mulOperands(inst, dst, args); err != nil {
			return nil, err
		}
		inst.setConn("OPMODE", "9'b000000101")
	default:
		if err := s.mulOperands(inst, dst, args); err != nil {
			return nil, err
		}
		opmode := "9'b000110101"
		if in.Op == xir.MulAddRegACi || in.Op == xir.MulAddRegACio {
			opmode = "9'b000010101"
			inst.setConn("PCIN", args[2]+"_pcout")
		} else {
			inst.setConn("C", extend(args[2], s.types[args[2]], dspWidth))
		}
		inst.setConn("OPMODE", opmode)
		if in.Op == xir.MulAddRegACo || in.Op == xir.MulAddRegACio {
			s.mod.AddDecl(Decl{Name: dst + "_pcout", Width: dspWidth})
			inst.setConn("PCOUT", dst+"_pcout")
		}
	}

	if strings.Contains(in.Op.String(), "rega") {
		regs := []string{"AREG", "BREG", "ACASCREG", "BCASCREG", "PREG"}
		ces := []string{"CEA2", "CEB2", "CEP"}
		if in.Op.IsMulAdd() {
			regs = append(regs, "MREG")
			ces = append(ces, "CEM")
		}
		for _, r := range regs {
			inst.setParam(r, "1")
		}
		for _, ce := range ces {
			inst.setConn(ce, en)
		}
	}

	elems := make([]string, 0, ty.Length())
	for i := ty.Length(); i > 0; i-- {
		base := (i - 1) * lane
		elems = append(elems, slice(p, dspWidth, base, base+ty.Width-1))
	}
	if len(elems) == 1 {
		s.mod.Assign(dst, elems[0])
	} else {
		s.mod.Assign(dst, "{"+strings.Join(elems, ", ")+"}")
	}
	return inst, nil
}

func (s *structural) mulOperands(inst *Instance, dst string, args []string) error {
	a, b := s.types[args[0]], s.types[args[1]]
	if a.IsVector() || b.IsVector() || a.TotalWidth() > 27 || b.TotalWidth() > bWidth {
		return diag.At(diag.EmitError, dst, "multiplier operands %s and %s do not fit a DSP48E2", a, b)
	}
	inst.setConn("A", extend(args[0], a, aWidth))
	inst.setConn("B", extend(args[1], b, bWidth))
	return nil
}
