package passes

import (
	"fmt"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

// TypeInference types every operand from its definition and rejects
// programs that still carry unknown types afterwards.
type TypeInference struct {
	reporter *diag.Reporter
}

// NewTypeInference constructs the pass. reporter is optional.
func NewTypeInference(reporter *diag.Reporter) *TypeInference {
	return &TypeInference{reporter: reporter}
}

func (t *TypeInference) Name() string {
	return "type-inference"
}

// Run infers types definition by definition, reporting each failure.
func (t *TypeInference) Run(prog *ir.Prog) error {
	var failed error
	for _, name := range prog.Names() {
		def := prog.Defs[name]
		err := def.InferTypes()
		if err == nil && ir.HasAnyTy(def.Sig, def.Body) {
			err = diag.At(diag.TypeError, name, "ports and destinations must have concrete types")
		}
		if err != nil {
			t.reporter.Error(t.Name(), err)
			if failed == nil {
				failed = err
			}
		}
	}
	if failed != nil {
		return fmt.Errorf("type inference failed: %w", failed)
	}
	return nil
}
