// Package interp runs programs cycle by cycle against input traces. IR,
// asm and xir programs are interpreted with the same trace format, so the
// outputs of every compilation stage can be compared directly.
package interp

import (
	"fmt"
	"strconv"
	"strings"

	"reticle/internal/diag"
	"reticle/internal/ir"
)

// Value holds one element per vector lane; scalars have a single element.
type Value []int64

func mask(width uint64) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<width - 1
}

// norm wraps v into the range of the scalar type ty.
func norm(ty ir.Ty, v int64) int64 {
	w := ty.Width
	u := uint64(v) & mask(w)
	if ty.IsSigned() && w < 64 && (u>>(w-1))&1 == 1 {
		return int64(u | ^mask(w))
	}
	return int64(u)
}

// bits returns the two's complement bit pattern of v in ty's width.
func bits(ty ir.Ty, v int64) uint64 {
	return uint64(v) & mask(ty.Width)
}

func normValue(ty ir.Ty, v Value) Value {
	out := make(Value, len(v))
	for i, e := range v {
		out[i] = norm(ty.Scalar(), e)
	}
	return out
}

// splat builds a value of ty from attribute values, one for every element
// or one per element.
func splat(ty ir.Ty, vals []int64) Value {
	n := ty.Length()
	out := make(Value, n)
	for i := range out {
		v := int64(0)
		switch {
		case uint64(len(vals)) == n:
			v = vals[i]
		case len(vals) > 0:
			v = vals[0]
		}
		out[i] = norm(ty.Scalar(), v)
	}
	return out
}

// Trace maps ids to one value per cycle.
type Trace struct {
	ids  []string
	vals map[string][]Value
	vec  map[string]bool
}

func NewTrace() *Trace {
	return &Trace{vals: make(map[string][]Value), vec: make(map[string]bool)}
}

// Append records the next cycle value of id.
func (t *Trace) Append(id string, v Value, vector bool) {
	if _, ok := t.vals[id]; !ok {
		t.ids = append(t.ids, id)
		t.vec[id] = vector
	}
	t.vals[id] = append(t.vals[id], v)
}

// Values returns every recorded value of id.
func (t *Trace) Values(id string) ([]Value, bool) {
	v, ok := t.vals[id]
	return v, ok
}

// IDs returns the recorded ids in insertion order.
func (t *Trace) IDs() []string { return append([]string(nil), t.ids...) }

// Steps is the number of cycles of the longest recorded id.
func (t *Trace) Steps() int {
	n := 0
	for _, vs := range t.vals {
		n = max(n, len(vs))
	}
	return n
}

func (t *Trace) String() string {
	var sb strings.Builder
	for _, id := range t.ids {
		parts := make([]string, 0, len(t.vals[id]))
		for _, v := range t.vals[id] {
			parts = append(parts, formatValue(v, t.vec[id]))
		}
		fmt.Fprintf(&sb, "%s: %s\n", id, strings.Join(parts, ", "))
	}
	return sb.String()
}

func formatValue(v Value, vector bool) string {
	elems := make([]string, len(v))
	for i, e := range v {
		elems[i] = strconv.FormatInt(e, 10)
	}
	if vector {
		return "[" + strings.Join(elems, ", ") + "]"
	}
	return strings.Join(elems, ", ")
}

// ParseTrace reads lines of the form "id: v0, v1, ..." or, for vectors,
// "id: [a, b], [c, d]". Blank lines and // comments are skipped.
func ParseTrace(src string) (*Trace, error) {
	t := NewTrace()
	for n, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, rest, ok := strings.Cut(line, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, diag.Errorf(diag.ParseError, "trace line %d: expected id: values", n+1)
		}
		if _, dup := t.vals[id]; dup {
			return nil, diag.Errorf(diag.ParseError, "trace line %d: %s listed twice", n+1, id)
		}
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, "[") {
			for rest != "" {
				if !strings.HasPrefix(rest, "[") {
					return nil, diag.Errorf(diag.ParseError, "trace line %d: expected [", n+1)
				}
				end := strings.Index(rest, "]")
				if end < 0 {
					return nil, diag.Errorf(diag.ParseError, "trace line %d: unterminated vector", n+1)
				}
				v, err := parseInts(rest[1:end])
				if err != nil {
					return nil, diag.Errorf(diag.ParseError, "trace line %d: %v", n+1, err)
				}
				t.Append(id, v, true)
				rest = strings.TrimSpace(rest[end+1:])
				rest = strings.TrimSpace(strings.TrimPrefix(rest, ","))
			}
			continue
		}
		vals, err := parseInts(rest)
		if err != nil {
			return nil, diag.Errorf(diag.ParseError, "trace line %d: %v", n+1, err)
		}
		for _, v := range vals {
			t.Append(id, Value{v}, false)
		}
	}
	return t, nil
}

func parseInts(s string) (Value, error) {
	var out Value
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseInt(f, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
