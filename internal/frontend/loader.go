package frontend

import (
	"fmt"
	"os"

	"reticle/internal/asm"
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/target"
)

// LoadConfig configures which source files make up a compilation unit. The
// definitions of every source are merged into one program.
type LoadConfig struct {
	Sources []string
}

// LoadIR reads and parses every source. Failures are reported per file and
// summarized in the returned error.
func LoadIR(cfg LoadConfig, reporter *diag.Reporter) (*ir.Prog, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no source files were provided")
	}
	prog := ir.NewProg()
	var hadErrors bool
	for _, path := range cfg.Sources {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		part, err := ParseIR(string(src))
		if err != nil {
			reporter.Error(path, err)
			hadErrors = true
			continue
		}
		for _, name := range part.Names() {
			if _, dup := prog.Defs[name]; dup {
				reporter.Error(path, diag.At(diag.ParseError, name, "definition repeated across sources"))
				hadErrors = true
				continue
			}
			prog.Add(part.Defs[name])
		}
	}
	if hadErrors {
		return nil, fmt.Errorf("loading sources failed")
	}
	return prog, nil
}

// LoadAsm reads an already selected program.
func LoadAsm(path string) (*asm.Prog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := ParseAsm(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// LoadTarget reads a pattern file and an implementation file.
func LoadTarget(patPath, impPath string) (*target.Target, error) {
	pats, err := os.ReadFile(patPath)
	if err != nil {
		return nil, err
	}
	imps, err := os.ReadFile(impPath)
	if err != nil {
		return nil, err
	}
	t, err := ParseTarget(string(pats), string(imps))
	if err != nil {
		return nil, fmt.Errorf("target %s, %s: %w", patPath, impPath, err)
	}
	return t, nil
}
