package validate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reticle/internal/diag"
	"reticle/internal/frontend"
	"reticle/internal/ir"
)

func TestValidateAcceptsRegisterFeedback(t *testing.T) {
	diagStr, err := runValidation(t, "ok_counter.ir")
	if err != nil {
		t.Fatalf("expected success, got error %v with diagnostics %s", err, diagStr)
	}
	if diagStr != "" {
		t.Fatalf("expected no diagnostics, got %q", diagStr)
	}
}

func TestValidateAcceptsCalls(t *testing.T) {
	if diagStr, err := runValidation(t, "ok_call.ir"); err != nil {
		t.Fatalf("expected success, got error %v with diagnostics %s", err, diagStr)
	}
}

func TestValidateRejectsUseBeforeDefinition(t *testing.T) {
	diagStr, err := runValidation(t, "bad_order.ir")
	if err == nil {
		t.Fatalf("expected out of order body to fail")
	}
	if !diag.IsKind(err, diag.UndefinedID) {
		t.Fatalf("expected undefined id error, got %v", err)
	}
	if !strings.Contains(diagStr, "used before definition") {
		t.Fatalf("expected ordering diagnostic, got %q", diagStr)
	}
}

func TestValidateRejectsRedefinition(t *testing.T) {
	diagStr, err := runValidation(t, "bad_redefine.ir")
	if err == nil {
		t.Fatalf("expected redefinition to fail")
	}
	if got := strings.Count(diagStr, "defined more than once"); got != 2 {
		t.Fatalf("expected 2 redefinition diagnostics, got %d in %q", got, diagStr)
	}
}

func TestValidateRejectsOperandTypes(t *testing.T) {
	diagStr, err := runValidation(t, "bad_types.ir")
	if err == nil {
		t.Fatalf("expected type errors")
	}
	for _, want := range []string{
		"operand 1 has type u8, want i8",
		"result must be bool",
		"condition must be bool",
		"cannot hold 5 bit(s)",
	} {
		if !strings.Contains(diagStr, want) {
			t.Errorf("missing diagnostic %q in %q", want, diagStr)
		}
	}
}

func TestValidateRejectsMissingOutput(t *testing.T) {
	diagStr, err := runValidation(t, "bad_output.ir")
	if err == nil {
		t.Fatalf("expected missing output to fail")
	}
	if !strings.Contains(diagStr, "never defined") {
		t.Fatalf("expected output diagnostic, got %q", diagStr)
	}
}

func TestValidateRejectsBadCalls(t *testing.T) {
	diagStr, err := runValidation(t, "bad_call.ir")
	if err == nil {
		t.Fatalf("expected bad calls to fail")
	}
	if !strings.Contains(diagStr, "arity mismatch") {
		t.Fatalf("expected arity diagnostic, got %q", diagStr)
	}
	if !strings.Contains(diagStr, "call to undefined definition") {
		t.Fatalf("expected undefined callee diagnostic, got %q", diagStr)
	}
}

func TestValidateRequiresMain(t *testing.T) {
	diagStr, err := runValidation(t, "bad_nomain.ir")
	if err == nil {
		t.Fatalf("expected program without main to fail")
	}
	if !strings.Contains(diagStr, "no main") {
		t.Fatalf("expected main diagnostic, got %q", diagStr)
	}
}

func TestValidateWarnsAboutUnusedValues(t *testing.T) {
	prog := parseTestdata(t, "warn_unused.ir")
	var buf bytes.Buffer
	reporter := diag.NewReporter(&buf, "text")
	if err := CheckProg(prog, reporter); err != nil {
		t.Fatalf("unused values must not fail validation: %v", err)
	}
	if errs, warnings := reporter.Count(); errs != 0 || warnings != 1 {
		t.Fatalf("expected one warning and no errors, got %d/%d: %q", errs, warnings, buf.String())
	}
	if !strings.Contains(buf.String(), "t0") || !strings.Contains(buf.String(), "never used") {
		t.Fatalf("expected the unused value to be named, got %q", buf.String())
	}
}

func TestValidateJSONDiagnostics(t *testing.T) {
	prog := parseTestdata(t, "bad_output.ir")
	var buf bytes.Buffer
	if err := CheckProg(prog, diag.NewReporter(&buf, "json")); err == nil {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(buf.String(), `"kind":"undefined id"`) {
		t.Fatalf("expected kind in json output, got %q", buf.String())
	}
}

func runValidation(t *testing.T, file string) (string, error) {
	t.Helper()
	prog := parseTestdata(t, file)
	var buf bytes.Buffer
	reporter := diag.NewReporter(&buf, "text")
	err := CheckProg(prog, reporter)
	return buf.String(), err
}

func parseTestdata(t *testing.T, file string) *ir.Prog {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("testdata", file))
	if err != nil {
		t.Fatalf("read %s: %v", file, err)
	}
	prog, err := frontend.ParseIR(string(src))
	if err != nil {
		t.Fatalf("parse %s: %v", file, err)
	}
	return prog
}
