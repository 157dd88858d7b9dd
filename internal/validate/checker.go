// Package validate enforces the static rules of IR programs: unique names,
// definition before use, and the operand typing of every op.
package validate

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

// CheckProg validates every definition of prog, reporting each violation.
func CheckProg(prog *ir.Prog, reporter *diag.Reporter) error {
	if prog == nil {
		return fmt.Errorf("no program provided for validation")
	}
	c := &checker{reporter: reporter, prog: prog}
	if _, err := prog.Main(); err != nil {
		c.report(err)
	}
	for _, name := range prog.Names() {
		c.checkDef(prog.Defs[name])
	}
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s): %w", c.errCount, c.first)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	prog     *ir.Prog
	errCount int
	first    error
}

func (c *checker) report(err error) {
	c.errCount++
	if c.first == nil {
		c.first = err
	}
	c.reporter.Error("validate", err)
}

func (c *checker) reportf(kind diag.Kind, id string, format string, args ...any) {
	c.report(diag.At(kind, id, format, args...))
}

func (c *checker) checkDef(def *ir.Def) {
	defined := set.New[string](len(def.Body) + def.Sig.Input.Len())
	for _, t := range def.Sig.Input.Terms {
		c.checkTerm(def.Sig.ID, t)
		if !defined.Insert(t.ID) {
			c.reportf(diag.TypeError, t.ID, "input defined twice in %s", def.Sig.ID)
		}
	}
	dests := set.New[string](len(def.Body))
	for _, instr := range def.Body {
		for _, t := range instr.Dests().Terms {
			if defined.Contains(t.ID) || !dests.Insert(t.ID) {
				c.reportf(diag.TypeError, t.ID, "defined more than once in %s", def.Sig.ID)
			}
		}
	}

	for _, instr := range def.Body {
		for _, t := range instr.Args().Terms {
			if !t.IsVar() {
				c.reportf(diag.TypeError, def.Sig.ID, "operand of %s is not a variable", instr)
				continue
			}
			if defined.Contains(t.ID) {
				continue
			}
			if ir.IsSequential(instr) && dests.Contains(t.ID) {
				continue
			}
			c.reportf(diag.UndefinedID, t.ID, "used before definition in %s", instr)
		}
		for _, t := range instr.Dests().Terms {
			c.checkTerm(def.Sig.ID, t)
			defined.Insert(t.ID)
		}
		if err := c.checkInstr(instr); err != nil {
			c.report(err)
		}
	}

	used := set.New[string](len(def.Body))
	for _, instr := range def.Body {
		for _, t := range instr.Args().Terms {
			used.Insert(t.ID)
		}
	}
	for _, t := range def.Sig.Output.Terms {
		c.checkTerm(def.Sig.ID, t)
		if !defined.Contains(t.ID) {
			c.reportf(diag.UndefinedID, t.ID, "output of %s is never defined", def.Sig.ID)
		}
		used.Insert(t.ID)
	}
	for _, instr := range def.Body {
		for _, t := range instr.Dests().Terms {
			if !used.Contains(t.ID) {
				c.reporter.Warning(t.ID, fmt.Sprintf("value is never used in %s", def.Sig.ID))
			}
		}
	}
}

func (c *checker) checkTerm(def string, t ir.ExprTerm) {
	if !t.IsVar() {
		c.reportf(diag.TypeError, def, "expected a variable, found %s", t)
		return
	}
	if t.Ty.IsAny() {
		c.reportf(diag.TypeError, t.ID, "type of %s is unknown", t.ID)
		return
	}
	if err := t.Ty.Validate(); err != nil {
		c.reportf(diag.TypeError, t.ID, "%v", err)
	}
}
