// Package ultrascale embeds the default target description for Xilinx
// UltraScale devices.
package ultrascale

import (
	_ "embed"
	"sync"

	"reticle/internal/frontend"
	"reticle/internal/target"
)

//go:embed ultrascale.pat
var patSrc string

//go:embed ultrascale.imp
var impSrc string

var load = sync.OnceValues(func() (*target.Target, error) {
	return frontend.ParseTarget(patSrc, impSrc)
})

// Target returns the parsed default description. The result is shared and
// must not be modified.
func Target() (*target.Target, error) {
	return load()
}

// Sources returns the embedded pattern and implementation texts.
func Sources() (pat, imp string) {
	return patSrc, impSrc
}
