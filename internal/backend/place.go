package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"reticle/internal/asm"
	"reticle/internal/diag"
)

// DefaultPlacer is looked up on PATH when a Placer asks for it without a
// path.
const DefaultPlacer = "reticle-place"

// Placer runs an external placement helper. The helper reads one
// "id prim" line per unplaced tile on stdin and answers with "id x y" lines
// on stdout.
type Placer struct {
	// Path optionally overrides the helper binary.
	Path   string
	// Lookup enables the PATH lookup of DefaultPlacer when Path is empty.
	Lookup bool
}

func (p Placer) IsZero() bool { return p.Path == "" && !p.Lookup }

// Place fixes the coordinates of every tile invocation whose location is
// not yet resolved. The assembler later copies them onto each primitive of
// the tile. prog itself is left untouched.
func Place(ctx context.Context, prog *asm.Prog, p Placer) (*asm.Prog, error) {
	out := prog.Clone()
	pending := make(map[string]*asm.InstrAsm)
	var order []string
	var req strings.Builder
	for _, instr := range out.Body {
		tile, ok := instr.(*asm.InstrAsm)
		if !ok || placed(tile.Loc) {
			continue
		}
		id, err := tile.Dst.ID(0)
		if err != nil {
			return nil, diag.At(diag.PlacementError, tile.Op, "tile without a destination: %v", err)
		}
		pending[id] = tile
		order = append(order, id)
		fmt.Fprintf(&req, "%s %s\n", id, tile.Loc.Prim)
	}
	if len(pending) == 0 {
		return out, nil
	}

	bin, err := resolveBinary(p.Path, DefaultPlacer)
	if err != nil {
		return nil, diag.Errorf(diag.PlacementError, "resolve placer: %v", err)
	}
	cmd := exec.CommandContext(ctx, bin)
	cmd.Stdin = strings.NewReader(req.String())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, diag.Errorf(diag.PlacementError, "placer failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	sc := bufio.NewScanner(&stdout)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, diag.Errorf(diag.PlacementError, "placer line %d: expected \"id x y\", got %q", n, line)
		}
		tile, ok := pending[fields[0]]
		if !ok {
			return nil, diag.At(diag.PlacementError, fields[0], "placer line %d: not awaiting placement", n)
		}
		x, errX := strconv.ParseUint(fields[1], 10, 64)
		y, errY := strconv.ParseUint(fields[2], 10, 64)
		if errX != nil || errY != nil {
			return nil, diag.Errorf(diag.PlacementError, "placer line %d: bad coordinates in %q", n, line)
		}
		tile.Loc.X, tile.Loc.Y = asm.CoordVal{Val: x}, asm.CoordVal{Val: y}
		delete(pending, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, diag.Errorf(diag.PlacementError, "read placer output: %v", err)
	}
	for _, id := range order {
		if _, missing := pending[id]; missing {
			return nil, diag.At(diag.PlacementError, id, "placer returned no location")
		}
	}
	return out, nil
}

func placed(l asm.Loc) bool {
	if l.X == nil || l.Y == nil {
		return false
	}
	_, okX := asm.Resolve(l.X)
	_, okY := asm.Resolve(l.Y)
	return okX && okY
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	return exec.LookPath(fallback)
}
