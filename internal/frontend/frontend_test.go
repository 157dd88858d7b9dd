package frontend

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

func TestIRPrintsCanonically(t *testing.T) {
	prog, err := ParseIR(`
// helpers come first when printed
def main(a:i8, en:bool)->(y:i8){
  t0:i8=inc(a);
  y:i8 = reg[3](t0, en) @lut;
}
def inc(a:i8) -> (y:i8) { one:i8 = const[1](); y:i8 = add(a, one) @??; }
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `def inc(a:i8) -> (y:i8) {
    one:i8 = const[1]();
    y:i8 = add(a, one) @??;
}

def main(a:i8, en:bool) -> (y:i8) {
    t0:i8 = inc(a);
    y:i8 = reg[3](t0, en) @lut;
}
`
	if diff := cmp.Diff(want, prog.String()); diff != "" {
		t.Fatalf("printed program mismatch (-want +got):\n%s", diff)
	}
}

func TestIRRoundTrip(t *testing.T) {
	srcs := []string{
		"def main(a:i8<4>, b:i8<4>) -> (y:i8<4>) { y:i8<4> = add(a, b) @dsp; }",
		"def main(a:u8) -> (y:u8, z:bool) { t0:u8 = sll[2](a); y:u8 = srl[1](t0); z:bool = ext[3](a); }",
		"def main(a:bool, b:bool) -> (y:bool) { y:bool = mux(a, b, a) @lut; }",
		"def main() -> (y:u4) { y:u4 = const[5](); }",
		"def main(a:i8, b:i8) -> (y:bool) { y:bool = lt(a, b) @lut; }",
	}
	for _, src := range srcs {
		first, err := ParseIR(src)
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		second, err := ParseIR(first.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", first, err)
		}
		if diff := cmp.Diff(first.String(), second.String()); diff != "" {
			t.Fatalf("round trip mismatch (-first +second):\n%s", diff)
		}
	}
}

func TestParsedOperandsAreTyped(t *testing.T) {
	prog, err := ParseIR(`
def main(a:i8, b:i8, en:bool) -> (y:i8) {
    t0:i8 = add(a, b) @??;
    y:i8 = reg[0](t1, en) @??;
    t1:i8 = sub(t0, y) @??;
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := prog.Defs["main"]
	if ir.HasAnyTy(def.Sig, def.Body) {
		t.Fatalf("untyped operands remain:\n%s", def)
	}
	env := def.Env()
	for _, instr := range def.Body {
		for _, arg := range instr.Args().Terms {
			if arg.IsVar() && arg.Ty != env[arg.ID] {
				t.Fatalf("%s: argument %s typed %s, defined as %s", instr, arg.ID, arg.Ty, env[arg.ID])
			}
		}
	}
}

func TestAsmAndXirRoundTrip(t *testing.T) {
	asmSrc := `def main(a:i8, b:i8, c:bool) -> (y:i8) {
    t0:i8 = lut_add_i8_i8_i8(a, b) @lut(??, ??);
    t1:i8 = id(t0);
    y:i8 = dsp_add_i8_i8_i8(t1, b) @dsp(3, 4);
}`
	prog, err := ParseAsm(asmSrc)
	if err != nil {
		t.Fatalf("parse asm: %v", err)
	}
	if diff := cmp.Diff(asmSrc, prog.String()); diff != "" {
		t.Fatalf("asm round trip mismatch (-want +got):\n%s", diff)
	}

	xirSrc := `def main(a:bool, b:bool) -> (y:bool, z:bool) {
    t0:bool = gnd();
    t1:bool = vcc();
    y:bool = lut2[8](a, b) @a6(1, 2);
    z:bool = fdre[0](t0, t1) @a(1, 2);
}`
	mach, err := ParseXir(xirSrc)
	if err != nil {
		t.Fatalf("parse xir: %v", err)
	}
	if diff := cmp.Diff(xirSrc, mach.String()); diff != "" {
		t.Fatalf("xir round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	position := regexp.MustCompile(`\d+:\d+: `)
	cases := []struct {
		name string
		src  string
		kind diag.Kind
		want string
		pos  bool
	}{
		{"char", "def main(a:bool) -> (y:bool) { y:bool = id(a) $ }", diag.ParseError, "unexpected character", true},
		{"brace", "def main(a:bool) -> (y:bool) { y:bool = id(a);", diag.ParseError, "", false},
		{"duplicate", "def f() -> () {}\ndef f() -> () {}", diag.ParseError, "duplicate definition f", true},
		{"wildcard", "def main(a:bool) -> (y:bool) { y:bool = not[_](a) @lut; }", diag.ParseError, "wildcard", true},
		{"prim", "def main(a:bool) -> (y:bool) { y:bool = not(a) @gpu; }", diag.ParseError, "unknown primitive", true},
		{"coords", "def main(a:bool) -> (y:bool) { y:bool = not(a) @lut(1, 2); }", diag.ParseError, "not coordinates", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseIR(tc.src)
			if !diag.IsKind(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
			if tc.pos && !position.MatchString(err.Error()) {
				t.Fatalf("expected a line:col position in %v", err)
			}
		})
	}
}

func TestAsmNeedsLocations(t *testing.T) {
	_, err := ParseAsm("def main(a:bool) -> (y:bool) { y:bool = lut_not_b_b(a); }")
	if !diag.IsKind(err, diag.ParseError) || !strings.Contains(err.Error(), "needs a location") {
		t.Fatalf("expected missing location error, got %v", err)
	}
	_, err = ParseXir("def main(a:bool) -> (y:bool) { y:bool = lut2[8](a, a) @zz(0, 0); }")
	if !diag.IsKind(err, diag.ParseError) {
		t.Fatalf("expected unknown bel error, got %v", err)
	}
}

func TestLoadIRMergesSources(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}
	lib := write("lib.ir", "def inv(a:bool) -> (y:bool) { y:bool = not(a) @lut; }")
	top := write("main.ir", "def main(a:bool) -> (y:bool) { y:bool = inv(a); }")
	prog, err := LoadIR(LoadConfig{Sources: []string{top, lib}}, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"inv", "main"}, prog.Names()); diff != "" {
		t.Fatalf("definitions mismatch (-want +got):\n%s", diff)
	}

	var sb strings.Builder
	rep := diag.NewReporter(&sb, "text")
	if _, err := LoadIR(LoadConfig{Sources: []string{lib, lib}}, rep); err == nil {
		t.Fatalf("expected repeated definitions to fail")
	}
	if errs, _ := rep.Count(); errs != 1 || !strings.Contains(sb.String(), "repeated") {
		t.Fatalf("expected one repeated-definition diagnostic, got %d: %s", errs, sb.String())
	}
	if _, err := LoadIR(LoadConfig{}, rep); err == nil {
		t.Fatalf("expected an empty source list to fail")
	}
}

func TestEmptyDefinitionBody(t *testing.T) {
	prog, err := ParseIR("def main(a:bool) -> (y:bool) { }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]ir.Instr(nil), prog.Defs["main"].Body, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("expected an empty body (-want +got):\n%s", diff)
	}
}
