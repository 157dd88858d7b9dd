// Package passes runs whole-program transformations and analyses over the IR
// in a fixed order.
package passes

import (
	"fmt"

	"reticle/internal/ir"
	"reticle/internal/logger"
)

// Pass is a single analysis or transformation over a program.
type Pass interface {
	Name() string
	Run(prog *ir.Prog) error
}

// Manager runs passes in insertion order and stops at the first failure.
type Manager struct {
	passes []Pass
}

func NewManager() *Manager {
	return &Manager{}
}

// Add appends a pass to the pipeline.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every pass over prog.
func (m *Manager) Run(prog *ir.Prog) error {
	if prog == nil {
		return fmt.Errorf("pass manager requires a non-nil program")
	}
	for _, p := range m.passes {
		logger.Debug("running pass", "pass", p.Name())
		if err := p.Run(prog); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}
