// Package backend drives a checked program through selection, placement,
// assembly and cascading down to Verilog.
package backend

import (
	"context"
	"fmt"
	"io"

	"reticle/internal/asm"
	"reticle/internal/assembler"
	"reticle/internal/cascade"
	"reticle/internal/diag"
	"reticle/internal/ir"
	"reticle/internal/isel"
	"reticle/internal/logger"
	"reticle/internal/passes"
	"reticle/internal/target"
	"reticle/internal/ultrascale"
	"reticle/internal/validate"
	"reticle/internal/verilog"
	"reticle/internal/xir"
)

// Kind selects what the compiler produces.
type Kind string

const (
	// Asm stops after instruction selection.
	Asm Kind = "asm"
	// Behavioral emits Verilog straight from the IR.
	Behavioral Kind = "behavioral"
	// Structural emits placed target primitives.
	Structural Kind = "structural"
)

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Asm, Behavioral, Structural:
		return k, nil
	}
	return "", fmt.Errorf("unknown backend %q (want asm, behavioral or structural)", s)
}

// Options configures a compilation.
type Options struct {
	Backend  Kind
	// UseDSP marks behavioral modules for DSP inference.
	UseDSP   bool
	// Target overrides the embedded UltraScale description when set.
	Target   *target.Target
	// Placer is consulted for tiles left unplaced. A zero Placer
	// leaves them unplaced.
	Placer   Placer
	Reporter *diag.Reporter
}

// ResolveTarget returns the configured target or the embedded one.
func (o Options) ResolveTarget() (*target.Target, error) {
	if o.Target != nil {
		return o.Target, nil
	}
	return ultrascale.Target()
}

// Result holds the artifacts of every stage that ran.
type Result struct {
	Kind   Kind
	Asm    *asm.Prog
	Xir    *xir.Prog
	Module *verilog.Module
	Chains int
}

// Write prints the final artifact of r.
func (r *Result) Write(w io.Writer) error {
	if r.Kind == Asm {
		if r.Asm == nil {
			return fmt.Errorf("no asm program was produced")
		}
		_, err := fmt.Fprintln(w, r.Asm)
		return err
	}
	if r.Module == nil {
		return fmt.Errorf("no Verilog module was produced")
	}
	return verilog.Emit(r.Module, w)
}

// Verify infers the types of prog and validates it.
func Verify(prog *ir.Prog, reporter *diag.Reporter) error {
	pm := passes.NewManager()
	pm.Add(passes.NewTypeInference(reporter))
	if err := pm.Run(prog); err != nil {
		return err
	}
	logger.LogPhase("validation")
	if err := validate.CheckProg(prog, reporter); err != nil {
		return err
	}
	logger.LogPhaseComplete("validation", len(prog.Defs))
	return nil
}

// Check verifies prog and inlines every call into main.
func Check(prog *ir.Prog, reporter *diag.Reporter) error {
	if err := Verify(prog, reporter); err != nil {
		return err
	}
	pm := passes.NewManager()
	pm.Add(passes.NewInline())
	return pm.Run(prog)
}

// Compile runs the full pipeline over an IR program.
func Compile(ctx context.Context, prog *ir.Prog, opts Options) (*Result, error) {
	if err := Check(prog, opts.Reporter); err != nil {
		return nil, err
	}
	def, err := prog.Main()
	if err != nil {
		return nil, err
	}
	if opts.Backend == Behavioral {
		logger.LogPhase("behavioral")
		mod, err := verilog.FromIR(def, opts.UseDSP)
		if err != nil {
			return nil, fmt.Errorf("behavioral: %w", err)
		}
		logger.LogPhaseComplete("behavioral", len(mod.Stmts))
		return &Result{Kind: Behavioral, Module: mod}, nil
	}
	t, err := opts.ResolveTarget()
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	sel, err := isel.NewSelector(t)
	if err != nil {
		return nil, fmt.Errorf("selection: %w", err)
	}
	logger.LogPhase("selection")
	selected, err := sel.Select(def)
	if err != nil {
		return nil, fmt.Errorf("selection: %w", err)
	}
	logger.LogPhaseComplete("selection", len(selected.Body))
	if opts.Backend == Asm {
		return &Result{Kind: Asm, Asm: selected}, nil
	}
	return Lower(ctx, selected, opts)
}

// Lower places, assembles and cascades an already selected program and
// emits structural Verilog.
func Lower(ctx context.Context, prog *asm.Prog, opts Options) (*Result, error) {
	if opts.Backend == Behavioral {
		return nil, fmt.Errorf("behavioral output needs an IR program")
	}
	if opts.Backend == Asm {
		return &Result{Kind: Asm, Asm: prog}, nil
	}
	t, err := opts.ResolveTarget()
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if !opts.Placer.IsZero() {
		logger.LogPhase("placement")
		if prog, err = Place(ctx, prog, opts.Placer); err != nil {
			return nil, fmt.Errorf("placement: %w", err)
		}
		logger.LogPhaseComplete("placement", len(prog.Body))
	}
	res := &Result{Kind: Structural, Asm: prog}

	logger.LogPhase("assembly")
	mach, err := assembler.New(t).Assemble(prog)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	logger.LogPhaseComplete("assembly", len(mach.Body))

	logger.LogPhase("cascade")
	if mach, res.Chains, err = cascade.Optimize(mach); err != nil {
		return nil, fmt.Errorf("cascade: %w", err)
	}
	logger.Debug("cascade chains", "chains", res.Chains)
	res.Xir = mach

	logger.LogPhase("structural")
	if res.Module, err = verilog.FromXir(mach); err != nil {
		return nil, fmt.Errorf("structural: %w", err)
	}
	logger.LogPhaseComplete("structural", len(res.Module.Stmts))
	return res, nil
}
