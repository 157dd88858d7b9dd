package ir

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/slices"
)

func (t Ty) String() string {
	switch t.Kind {
	case TyBool:
		return "bool"
	case TyUInt:
		return fmt.Sprintf("u%d", t.Width)
	case TySInt:
		return fmt.Sprintf("i%d", t.Width)
	case TyVector:
		return fmt.Sprintf("%s<%d>", t.Scalar(), t.Len)
	default:
		return "??"
	}
}

func (t ExprTerm) String() string {
	switch t.Kind {
	case TermVal:
		return fmt.Sprintf("%d", t.Val)
	case TermVar:
		return fmt.Sprintf("%s:%s", t.ID, t.Ty)
	default:
		return "_"
	}
}

// String prints a bare term as is and a tuple in parentheses.
func (e Expr) String() string {
	if !e.Tup && len(e.Terms) == 1 {
		return e.Terms[0].String()
	}
	return "(" + joinTerms(e.Terms, ExprTerm.String) + ")"
}

// AttrString prints an attribute list, empty when there is none.
func AttrString(e Expr) string {
	if e.IsEmpty() {
		return ""
	}
	return "[" + joinTerms(e.Terms, ExprTerm.String) + "]"
}

// ArgString prints operands by name.
func ArgString(e Expr) string {
	return "(" + joinTerms(e.Terms, func(t ExprTerm) string {
		if t.IsVar() {
			return t.ID
		}
		return t.String()
	}) + ")"
}

// SigString prints a typed port list in parentheses.
func SigString(e Expr) string {
	return "(" + joinTerms(e.Terms, ExprTerm.String) + ")"
}

func joinTerms(terms []ExprTerm, f func(ExprTerm) string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, f(t))
	}
	return strings.Join(parts, ", ")
}

func (i *InstrWire) String() string {
	return fmt.Sprintf("%s = %s%s%s", i.Dst, i.Op, AttrString(i.Attr), ArgString(i.Arg))
}

func (i *InstrComp) String() string {
	return fmt.Sprintf("%s = %s%s%s @%s", i.Dst, i.Op, AttrString(i.Attr), ArgString(i.Arg), i.Prim)
}

func (i *InstrCall) String() string {
	return fmt.Sprintf("%s = %s%s", i.Dst, i.Op, ArgString(i.Arg))
}

func (s Sig) String() string {
	return fmt.Sprintf("def %s%s -> %s", s.ID, SigString(s.Input), SigString(s.Output))
}

// WriteBody prints instructions one per line inside braces.
func WriteBody[T fmt.Stringer](w io.Writer, body []T) {
	fmt.Fprintln(w, "{")
	for _, instr := range body {
		fmt.Fprintf(w, "    %s;\n", instr)
	}
	fmt.Fprint(w, "}")
}

func (d *Def) String() string {
	var sb strings.Builder
	sb.WriteString(d.Sig.String())
	sb.WriteString(" ")
	WriteBody(&sb, d.Body)
	return sb.String()
}

// Names returns definition ids in print order: non-main sorted by name,
// then main.
func (p *Prog) Names() []string {
	names := make([]string, 0, len(p.Defs))
	hasMain := false
	for name := range p.Defs {
		if name == "main" {
			hasMain = true
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	if hasMain {
		names = append(names, "main")
	}
	return names
}

func (p *Prog) String() string {
	var sb strings.Builder
	Dump(p, &sb)
	return sb.String()
}

// Dump writes the program in surface syntax.
func Dump(p *Prog, w io.Writer) {
	if p == nil {
		fmt.Fprintln(w, "<nil prog>")
		return
	}
	for i, name := range p.Names() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, p.Defs[name])
	}
}
