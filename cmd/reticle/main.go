package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"reticle/internal/asm"
	"reticle/internal/backend"
	"reticle/internal/diag"
	"reticle/internal/frontend"
	"reticle/internal/interp"
	"reticle/internal/ir"
	"reticle/internal/logger"
	"reticle/internal/target"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing input")
	}
	switch args[0] {
	case "check":
		return runCheck(args[1:])
	case "interp":
		return runInterp(args[1:])
	case "help", "-h", "--help":
		printGlobalUsage()
		return nil
	default:
		return runCompile(args)
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "Reticle FPGA compiler\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  reticle [options] INPUT\n")
	fmt.Fprintf(os.Stderr, "  reticle check [options] INPUT\n")
	fmt.Fprintf(os.Stderr, "  reticle interp --trace FILE [options] INPUT\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  (none)     Compile IR or asm to asm or Verilog\n")
	fmt.Fprintf(os.Stderr, "  check      Parse and verify IR, print the normalized program\n")
	fmt.Fprintf(os.Stderr, "  interp     Run a program against an input trace\n")
}

// common holds the flags every command accepts.
type common struct {
	diagFormat *string
	logLevel   *string
	logFormat  *string
	output     *string
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		diagFormat: fs.String("diag-format", "text", "diagnostic output format (text|json)"),
		logLevel:   fs.String("log-level", "warn", "log level (debug|info|warn|error)"),
		logFormat:  fs.String("log-format", "text", "log output format (text|json)"),
		output:     fs.String("output", "", "output file path (stdout when omitted)"),
	}
}

// setup installs the logger and returns the diagnostics reporter.
func (c *common) setup() (*diag.Reporter, error) {
	level, err := logger.ParseLevel(*c.logLevel)
	if err != nil {
		return nil, err
	}
	cfg := logger.DefaultConfig()
	cfg.Level = level
	cfg.Format = *c.logFormat
	if err := logger.Init(cfg); err != nil {
		return nil, err
	}
	return diag.NewReporter(os.Stderr, *c.diagFormat), nil
}

// targetFlags selects the target description.
type targetFlags struct {
	pat *string
	imp *string
}

func addTargetFlags(fs *flag.FlagSet) *targetFlags {
	return &targetFlags{
		pat: fs.String("target-pat", "", "pattern file overriding the embedded target (requires --target-imp)"),
		imp: fs.String("target-imp", "", "implementation file overriding the embedded target (requires --target-pat)"),
	}
}

// load returns nil when the embedded target should be used.
func (t *targetFlags) load() (*target.Target, error) {
	if *t.pat == "" && *t.imp == "" {
		return nil, nil
	}
	if *t.pat == "" || *t.imp == "" {
		return nil, fmt.Errorf("--target-pat and --target-imp must be given together")
	}
	return frontend.LoadTarget(*t.pat, *t.imp)
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("reticle", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	com := commonFlags(fs)
	tf := addTargetFlags(fs)
	backendName := fs.String("backend", string(backend.Structural), "output (asm|behavioral|structural)")
	asmInput := fs.Bool("asm", false, "input is an already selected asm program")
	useDSP := fs.Bool("use-dsp", false, "request DSP inference on behavioral output")
	placerPath := fs.String("placer", "", "path to the placement helper")
	place := fs.Bool("place", false, "run "+backend.DefaultPlacer+" from PATH when --placer is not set")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one input file")
	}
	kind, err := backend.ParseKind(*backendName)
	if err != nil {
		return err
	}
	reporter, err := com.setup()
	if err != nil {
		return err
	}
	t, err := tf.load()
	if err != nil {
		reporter.Error("target", err)
		return err
	}
	opts := backend.Options{
		Backend:  kind,
		UseDSP:   *useDSP,
		Target:   t,
		Placer:   backend.Placer{Path: *placerPath, Lookup: *place},
		Reporter: reporter,
	}

	ctx := context.Background()
	var res *backend.Result
	if *asmInput {
		prog, err := frontend.LoadAsm(fs.Arg(0))
		if err != nil {
			reporter.Error("parse", err)
			return err
		}
		res, err = backend.Lower(ctx, prog, opts)
		if err != nil {
			reporter.Error("compile", err)
			return err
		}
	} else {
		prog, err := frontend.LoadIR(frontend.LoadConfig{Sources: fs.Args()}, reporter)
		if err != nil {
			return err
		}
		res, err = backend.Compile(ctx, prog, opts)
		if err != nil {
			reportOnce(reporter, "compile", err)
			return err
		}
	}
	return withOutputWriter(*com.output, res.Write)
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	com := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("check requires at least one input file")
	}
	reporter, err := com.setup()
	if err != nil {
		return err
	}
	prog, err := frontend.LoadIR(frontend.LoadConfig{Sources: fs.Args()}, reporter)
	if err != nil {
		return err
	}
	if err := backend.Verify(prog, reporter); err != nil {
		reportOnce(reporter, "check", err)
		return err
	}
	return withOutputWriter(*com.output, func(w io.Writer) error {
		ir.Dump(prog, w)
		return nil
	})
}

func runInterp(args []string) error {
	fs := flag.NewFlagSet("interp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	com := commonFlags(fs)
	tf := addTargetFlags(fs)
	tracePath := fs.String("trace", "", "input trace file (required)")
	level := fs.String("level", "ir", "program level to interpret (ir|asm|xir)")
	asmInput := fs.Bool("asm", false, "input is an already selected asm program")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *tracePath == "" {
		fs.Usage()
		return fmt.Errorf("interp requires --trace and one input file")
	}
	reporter, err := com.setup()
	if err != nil {
		return err
	}
	src, err := os.ReadFile(*tracePath)
	if err != nil {
		return err
	}
	in, err := interp.ParseTrace(string(src))
	if err != nil {
		err = fmt.Errorf("%s: %w", *tracePath, err)
		reporter.Error("trace", err)
		return err
	}
	t, err := tf.load()
	if err != nil {
		reporter.Error("target", err)
		return err
	}
	out, err := interpret(fs.Arg(0), *level, *asmInput, t, in, reporter)
	if err != nil {
		reportOnce(reporter, "interp", err)
		return err
	}
	return withOutputWriter(*com.output, func(w io.Writer) error {
		_, err := io.WriteString(w, out.String())
		return err
	})
}

func interpret(path, level string, asmInput bool, t *target.Target, in *interp.Trace, reporter *diag.Reporter) (*interp.Trace, error) {
	ctx := context.Background()
	opts := backend.Options{Backend: backend.Asm, Target: t, Reporter: reporter}
	var selected *asm.Prog
	if asmInput {
		prog, err := frontend.LoadAsm(path)
		if err != nil {
			return nil, err
		}
		selected = prog
	} else {
		prog, err := frontend.LoadIR(frontend.LoadConfig{Sources: []string{path}}, reporter)
		if err != nil {
			return nil, err
		}
		if level == "ir" {
			if err := backend.Check(prog, reporter); err != nil {
				return nil, err
			}
			def, err := prog.Main()
			if err != nil {
				return nil, err
			}
			return interp.RunIR(def, in)
		}
		res, err := backend.Compile(ctx, prog, opts)
		if err != nil {
			return nil, err
		}
		selected = res.Asm
	}
	switch level {
	case "ir", "asm":
		t, err := opts.ResolveTarget()
		if err != nil {
			return nil, err
		}
		return interp.RunAsm(selected, t, in)
	case "xir":
		opts.Backend = backend.Structural
		res, err := backend.Lower(ctx, selected, opts)
		if err != nil {
			return nil, err
		}
		return interp.RunXir(res.Xir, in)
	}
	return nil, fmt.Errorf("unknown interpretation level %q (want ir, asm or xir)", level)
}

// reportOnce reports err unless a stage already reported diagnostics.
func reportOnce(reporter *diag.Reporter, stage string, err error) {
	if !reporter.HasErrors() {
		reporter.Error(stage, err)
	}
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	w, closeFn, err := outputWriter(path)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
