package backend

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/frontend"
	"reticle/internal/ir"
	"reticle/internal/xir"
)

const andSrc = `
def main(a:bool, b:bool) -> (y:bool) {
    y:bool = and(a, b) @lut;
}
`

func parse(t *testing.T, src string) *ir.Prog {
	t.Helper()
	prog, err := frontend.ParseIR(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

func render(t *testing.T, res *Result) string {
	t.Helper()
	var sb strings.Builder
	if err := res.Write(&sb); err != nil {
		t.Fatalf("write result: %v", err)
	}
	return sb.String()
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"asm", "behavioral", "structural"} {
		if k, err := ParseKind(name); err != nil || string(k) != name {
			t.Fatalf("ParseKind(%q) = %q, %v", name, k, err)
		}
	}
	if _, err := ParseKind("netlist"); err == nil {
		t.Fatalf("expected unknown backend to be rejected")
	}
}

func TestCompileStopsAfterSelection(t *testing.T) {
	res, err := Compile(context.Background(), parse(t, andSrc), Options{Backend: Asm})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if res.Xir != nil || res.Module != nil {
		t.Fatalf("asm backend should not assemble")
	}
	out := render(t, res)
	if !strings.Contains(out, "y:bool = lut_and_b_b_b[8](a, b) @lut(??, ??);") {
		t.Fatalf("unexpected asm output:\n%s", out)
	}
}

func TestCompileStructuralWithoutPlacer(t *testing.T) {
	res, err := Compile(context.Background(), parse(t, andSrc), Options{Backend: Structural})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	out := render(t, res)
	for _, want := range []string{"LUT2 # (", ".INIT(4'h8)", ".I0(a)", ".I1(b)", ".O(y)", "endmodule"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "LOC") {
		t.Fatalf("unplaced design carries a location:\n%s", out)
	}
}

func TestCompileBehavioral(t *testing.T) {
	res, err := Compile(context.Background(), parse(t, andSrc), Options{Backend: Behavioral, UseDSP: true})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	out := render(t, res)
	if !strings.Contains(out, `use_dsp = "yes"`) || strings.Contains(out, "LUT2") {
		t.Fatalf("unexpected behavioral output:\n%s", out)
	}
}

func TestCompileInlinesCalls(t *testing.T) {
	prog := parse(t, `
def inv(a:bool) -> (y:bool) {
    y:bool = not(a) @lut;
}

def main(a:bool) -> (y:bool) {
    t0:bool = inv(a);
    y:bool = inv(t0);
}
`)
	res, err := Compile(context.Background(), prog, Options{Backend: Structural})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if got := strings.Count(render(t, res), "LUT1"); got != 2 {
		t.Fatalf("expected two inverters, got %d", got)
	}
}

func TestCompileReportsValidationErrors(t *testing.T) {
	var sb strings.Builder
	rep := diag.NewReporter(&sb, "text")
	prog := parse(t, "def main(a:bool) -> (y:bool) { y:bool = and(a, b) @lut; }")
	_, err := Compile(context.Background(), prog, Options{Backend: Structural, Reporter: rep})
	if err == nil {
		t.Fatalf("expected undefined argument to fail")
	}
	if !rep.HasErrors() {
		t.Fatalf("expected the failure to be reported")
	}
}

func TestLowerRejectsBehavioral(t *testing.T) {
	prog, err := frontend.ParseAsm("def main(a:bool, b:bool) -> (y:bool) { y:bool = lut_and_b_b_b[8](a, b) @lut(??, ??); }")
	if err != nil {
		t.Fatalf("parse asm: %v", err)
	}
	if _, err := Lower(context.Background(), prog, Options{Backend: Behavioral}); err == nil {
		t.Fatalf("expected behavioral lowering of asm to fail")
	}
	res, err := Lower(context.Background(), prog, Options{Backend: Structural})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	if len(res.Xir.Body) != 1 {
		t.Fatalf("expected one machine instruction, got:\n%s", res.Xir)
	}
}

func TestPlacerAssignsCoordinates(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	log := filepath.Join(tmp, "request.txt")
	placer := writeScript(t, tmp, "place.sh", `#!/bin/sh
set -e
tee "`+log+`" | while read id prim; do
  echo "$id 3 7"
done
`)
	res, err := Compile(context.Background(), parse(t, andSrc), Options{
		Backend: Structural,
		Placer:  Placer{Path: placer},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	req, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if string(req) != "y lut\n" {
		t.Fatalf("unexpected placer request %q", req)
	}
	m := res.Xir.Body[0].(*xir.InstrMach)
	if x, y, ok := m.Loc.Placed(); !ok || x != 3 || y != 7 {
		t.Fatalf("expected y placed at (3, 7), got %s", m.Loc)
	}
	if out := render(t, res); !strings.Contains(out, `LOC = "SLICE_X3Y7"`) {
		t.Fatalf("expected a placed slice in:\n%s", out)
	}
}

func TestPlacedTileSharesCoordinates(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	log := filepath.Join(tmp, "request.txt")
	placer := writeScript(t, tmp, "place.sh", `#!/bin/sh
tee "`+log+`" | while read id prim; do
  echo "$id 4 9"
done
`)
	prog := parse(t, "def main(a:i8, b:i8) -> (y:i8) { y:i8 = and(a, b) @lut; }")
	res, err := Compile(context.Background(), prog, Options{
		Backend: Structural,
		Placer:  Placer{Path: placer},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	req, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if string(req) != "y lut\n" {
		t.Fatalf("expected one request for the tile, got %q", req)
	}
	bels := set.New[string](8)
	for _, instr := range res.Xir.Body {
		m, ok := instr.(*xir.InstrMach)
		if !ok {
			continue
		}
		if x, y, ok := m.Loc.Placed(); !ok || x != 4 || y != 9 {
			t.Fatalf("%s not at the tile location (4, 9)", m)
		}
		if !bels.Insert(m.Loc.Bel.Name) {
			t.Fatalf("bel %s used twice in one slice", m.Loc.Bel)
		}
	}
	if bels.Size() != 8 {
		t.Fatalf("expected eight LUTs in the slice, got %v", bels.Slice())
	}
	if got := res.Asm.Body[0].(*asm.InstrAsm).Loc.String(); got != "@lut(4, 9)" {
		t.Fatalf("expected the placed tile in the asm result, got %s", got)
	}
}

func TestPlaceKeepsPlacedInstructions(t *testing.T) {
	prog, err := frontend.ParseAsm("def main(a:bool, b:bool) -> (y:bool) { y:bool = lut_and_b_b_b[8](a, b) @lut(2, 5); }")
	if err != nil {
		t.Fatalf("parse asm: %v", err)
	}
	// A placer that cannot run proves it is never consulted.
	res, err := Lower(context.Background(), prog, Options{
		Backend: Structural,
		Placer:  Placer{Path: filepath.Join(t.TempDir(), "missing")},
	})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	if !strings.Contains(render(t, res), `LOC = "SLICE_X2Y5"`) {
		t.Fatalf("expected the fixed location to survive")
	}
}

func TestPlacerFailures(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	cases := []struct {
		name, body, want string
	}{
		{"exit", "#!/bin/sh\ncat >/dev/null\necho 'no room' >&2\nexit 3\n", "no room"},
		{"garbled", "#!/bin/sh\ncat >/dev/null\necho 'y three'\n", "expected \"id x y\""},
		{"unknown", "#!/bin/sh\ncat >/dev/null\necho 'z 1 1'\n", "not awaiting placement"},
		{"coords", "#!/bin/sh\ncat >/dev/null\necho 'y 1 -2'\n", "bad coordinates"},
		{"silent", "#!/bin/sh\ncat >/dev/null\n", "no location"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			placer := writeScript(t, tmp, tc.name+".sh", tc.body)
			_, err := Compile(context.Background(), parse(t, andSrc), Options{
				Backend: Structural,
				Placer:  Placer{Path: placer},
			})
			if !diag.IsKind(err, diag.PlacementError) {
				t.Fatalf("expected placement error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestPlacerMissingBinary(t *testing.T) {
	_, err := Compile(context.Background(), parse(t, andSrc), Options{
		Backend: Structural,
		Placer:  Placer{Path: filepath.Join(t.TempDir(), "reticle-place")},
	})
	if !diag.IsKind(err, diag.PlacementError) {
		t.Fatalf("expected placement error, got %v", err)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
	return path
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
}
