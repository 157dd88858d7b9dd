package passes

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reticle/internal/diag"
	"reticle/internal/frontend"
	"reticle/internal/ir"
)

func parse(t *testing.T, src string) *ir.Prog {
	t.Helper()
	prog, err := frontend.ParseIR(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

func mainBody(t *testing.T, prog *ir.Prog) []string {
	t.Helper()
	def, err := prog.Main()
	if err != nil {
		t.Fatalf("main: %v", err)
	}
	var out []string
	for _, instr := range def.Body {
		out = append(out, instr.String())
	}
	return out
}

type failing struct{ err error }

func (f failing) Name() string            { return "failing" }
func (f failing) Run(prog *ir.Prog) error { return f.err }

type counting struct{ runs *int }

func (c counting) Name() string { return "counting" }
func (c counting) Run(prog *ir.Prog) error {
	*c.runs++
	return nil
}

func TestManagerStopsAtFirstFailure(t *testing.T) {
	runs := 0
	boom := diag.Errorf(diag.TypeError, "boom")
	m := NewManager()
	m.Add(counting{&runs})
	m.Add(failing{boom})
	m.Add(counting{&runs})
	err := m.Run(ir.NewProg())
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "failing: ") {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected one pass before the failure, ran %d", runs)
	}
	if err := m.Run(nil); err == nil {
		t.Fatalf("expected nil program to fail")
	}
}

func TestTypeInferenceReports(t *testing.T) {
	prog := parse(t, "def main(a:u8) -> (y:u8) { y:u8 = add(a, a) @lut; }")
	var sb strings.Builder
	rep := diag.NewReporter(&sb, "text")
	if err := NewTypeInference(rep).Run(prog); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	prog.Defs["main"].Body[0].Dests().Terms[0].Ty = ir.AnyTy()
	err := NewTypeInference(rep).Run(prog)
	if !diag.IsKind(err, diag.TypeError) {
		t.Fatalf("expected type error, got %v", err)
	}
	if !rep.HasErrors() || !strings.Contains(sb.String(), "type-inference") {
		t.Fatalf("expected a reported diagnostic, got %q", sb.String())
	}
}

func TestInlineRenamesLocals(t *testing.T) {
	prog := parse(t, `
def inc(a:u8) -> (y:u8) {
    one:u8 = const[1]();
    y:u8 = add(a, one) @lut;
}

def main(a:u8) -> (y:u8) {
    t0:u8 = inc(a);
    y:u8 = inc(t0);
}
`)
	if err := NewInline().Run(prog); err != nil {
		t.Fatalf("inline: %v", err)
	}
	want := []string{
		"t0_one:u8 = const[1]()",
		"t0:u8 = add(a, t0_one) @lut",
		"y_one:u8 = const[1]()",
		"y:u8 = add(t0, y_one) @lut",
	}
	if diff := cmp.Diff(want, mainBody(t, prog)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
	if _, ok := prog.Defs["inc"]; !ok {
		t.Fatalf("callee removed from the program")
	}
}

func TestInlineNestedAndPassThrough(t *testing.T) {
	prog := parse(t, `
def pass(a:bool) -> (y:bool) {
}

def inv(a:bool) -> (y:bool) {
    t0:bool = pass(a);
    y:bool = not(t0) @lut;
}

def main(t0:bool) -> (y:bool) {
    y:bool = inv(t0);
}
`)
	if err := NewInline().Run(prog); err != nil {
		t.Fatalf("inline: %v", err)
	}
	want := []string{
		"y_t0:bool = id(t0)",
		"y:bool = not(y_t0) @lut",
	}
	if diff := cmp.Diff(want, mainBody(t, prog)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestInlineRejectsRecursion(t *testing.T) {
	prog := parse(t, `
def loop(a:bool) -> (y:bool) {
    y:bool = loop(a);
}

def main(a:bool) -> (y:bool) {
    y:bool = loop(a);
}
`)
	if err := NewInline().Run(prog); !diag.IsKind(err, diag.ConversionError) {
		t.Fatalf("expected recursion to be rejected, got %v", err)
	}
}
