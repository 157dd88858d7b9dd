package assembler

import (
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-set/v3"

	"reticle/internal/frontend"
	"reticle/internal/target"
	"reticle/internal/ultrascale"
	"reticle/internal/xir"
)

func defaultTarget(t *testing.T) *target.Target {
	t.Helper()
	tgt, err := ultrascale.Target()
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return tgt
}

func assemble(t *testing.T, src string) *xir.Prog {
	t.Helper()
	prog, err := frontend.ParseAsm(src)
	if err != nil {
		t.Fatalf("parse asm: %v", err)
	}
	out, err := New(defaultTarget(t)).Assemble(prog)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return out
}

func lines(body []xir.Instr) []string {
	var out []string
	for _, instr := range body {
		out = append(out, instr.String())
	}
	return out
}

func TestConstantUsesOneTieCellPerBit(t *testing.T) {
	prog := assemble(t, "def main() -> (y:u8) { y:u8 = const[3](); }")
	want := []string{
		"t0:bool = vcc()",
		"t1:bool = vcc()",
		"t2:bool = gnd()",
		"t3:bool = gnd()",
		"t4:bool = gnd()",
		"t5:bool = gnd()",
		"t6:bool = gnd()",
		"t7:bool = gnd()",
		"y:u8 = cat(t0, t1, t2, t3, t4, t5, t6, t7)",
	}
	if diff := cmp.Diff(want, lines(prog.Body)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestConstantCellsMatchSetBits(t *testing.T) {
	for _, v := range []int64{0, 7, 3, 0xa5, -1} {
		prog := assemble(t, "def main() -> (y:i8) { y:i8 = const["+strconv.FormatInt(v, 10)+"](); }")
		var vcc, gnd int
		for _, instr := range prog.Body {
			basc, ok := instr.(*xir.InstrBasc)
			if !ok {
				t.Fatalf("unexpected machine op %s", instr)
			}
			switch basc.Op {
			case xir.BascVcc:
				vcc++
			case xir.BascGnd:
				gnd++
			}
		}
		ones := 0
		for i := 0; i < 8; i++ {
			ones += int(uint64(v)>>i) & 1
		}
		if vcc != ones || gnd != 8-ones {
			t.Errorf("const %d: got %d vcc and %d gnd, want %d and %d", v, vcc, gnd, ones, 8-ones)
		}
	}
}

func TestConstantBoolIsSingleCell(t *testing.T) {
	prog := assemble(t, "def main() -> (y:bool) { y:bool = const[1](); }")
	if diff := cmp.Diff([]string{"y:bool = vcc()"}, lines(prog.Body)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestShiftsRewireBits(t *testing.T) {
	prog := assemble(t, "def main(a:i4) -> (y:i4) { y:i4 = sra[1](a); }")
	want := []string{
		"t0:bool = ext[1](a)",
		"t1:bool = ext[2](a)",
		"t2:bool = ext[3](a)",
		"t3:bool = ext[3](a)",
		"y:i4 = cat(t0, t1, t2, t3)",
	}
	if diff := cmp.Diff(want, lines(prog.Body)); diff != "" {
		t.Fatalf("sra mismatch (-want +got):\n%s", diff)
	}

	prog = assemble(t, "def main(a:u4) -> (y:u4) { y:u4 = sll[2](a); }")
	want = []string{
		"t0:bool = gnd()",
		"t1:bool = ext[0](a)",
		"t2:bool = ext[1](a)",
		"y:u4 = cat(t0, t0, t1, t2)",
	}
	if diff := cmp.Diff(want, lines(prog.Body)); diff != "" {
		t.Fatalf("sll mismatch (-want +got):\n%s", diff)
	}
}

func TestInvocationBindsAttributesAndLocation(t *testing.T) {
	prog := assemble(t, `
def main(a:i8, en:bool) -> (y:i8) {
    y:i8 = lut_reg_i8_i8_b[3](a, en) @lut(2, 5);
}
`)
	got := lines(prog.Body)
	if len(got) != 17 {
		t.Fatalf("expected 17 instructions, got %d:\n%s", len(got), strings.Join(got, "\n"))
	}
	if got[0] != "t0:bool = ext[0](a)" {
		t.Fatalf("unexpected first instruction %q", got[0])
	}
	if got[8] != "t8:bool = fdre[3, 0](t0, en) @a(2, 5)" {
		t.Fatalf("unexpected register %q", got[8])
	}
	if got[16] != "y:i8 = cat(t8, t9, t10, t11, t12, t13, t14, t15)" {
		t.Fatalf("unexpected output %q", got[16])
	}
}

func TestFreshNamesAvoidProgramNames(t *testing.T) {
	prog := assemble(t, `
def main(t0:bool, t1:bool) -> (t2:bool, y:u8) {
    t2:bool = lut_and_b_b_b[8](t0, t1) @lut(??, ??);
    y:u8 = const[255]();
}
`)
	dests := set.New[string](len(prog.Body))
	for _, instr := range prog.Body {
		for _, term := range instr.Dests().Terms {
			if !dests.Insert(term.ID) {
				t.Fatalf("name %s defined twice", term.ID)
			}
		}
	}
	for _, name := range []string{"t0", "t1"} {
		if dests.Contains(name) {
			t.Fatalf("fresh name collides with input %s", name)
		}
	}
	if got := prog.Body[1].String(); got != "t3:bool = vcc()" {
		t.Fatalf("expected numbering to skip program names, got %q", got)
	}
}

func TestLocalsAreRenamed(t *testing.T) {
	prog := assemble(t, `
def main(a:bool, b:bool, en:bool) -> (y:bool) {
    y:bool = lut_reg_b_b_b[0](w, en) @lut(??, ??);
    x:bool = lut_and_b_b_b[8](a, b) @lut(??, ??);
    w:bool = id(x);
}
`)
	want := []string{
		"y:bool = fdre[0](t0, en) @a(??, ??)",
		"t1:bool = lut2[8](a, b) @a6(??, ??)",
		"t0:bool = id(t1)",
	}
	if diff := cmp.Diff(want, lines(prog.Body)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	src := `
def main(a:i8, b:i8) -> (y:bool) {
    y:bool = lut_eq_b_i8_i8(a, b) @lut(??, ??);
}
`
	first := assemble(t, src)
	second := assemble(t, src)
	if diff := cmp.Diff(first.String(), second.String()); diff != "" {
		t.Fatalf("assembly differs between runs (-first +second):\n%s", diff)
	}
	if first.Sig.String() != "def main(a:i8, b:i8) -> (y:bool)" {
		t.Fatalf("signature changed: %s", first.Sig)
	}
}

func TestUnknownTileFails(t *testing.T) {
	prog, err := frontend.ParseAsm("def main(a:bool) -> (y:bool) { y:bool = nope(a) @lut(??, ??); }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := New(defaultTarget(t)).Assemble(prog); err == nil {
		t.Fatalf("expected unknown tile to fail")
	}
}

func TestPrefix(t *testing.T) {
	prog, err := frontend.ParseAsm("def main() -> (y:u2) { y:u2 = const[1](); }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := New(defaultTarget(t)).WithPrefix("n").Assemble(prog)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got := out.Body[0].String(); got != "n0:bool = vcc()" {
		t.Fatalf("unexpected %q", got)
	}
}
