package verilog

import (
	"fmt"
	"io"
	"strings"
)

// Emit writes m as Verilog source.
func Emit(m *Module, w io.Writer) error {
	pr := &printer{w: w}
	pr.emitModule(m)
	return pr.err
}

func (m *Module) String() string {
	var sb strings.Builder
	_ = Emit(m, &sb)
	return sb.String()
}

type printer struct {
	w      io.Writer
	indent int
	err    error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) line(format string, args ...any) {
	p.printf("%s", strings.Repeat("  ", p.indent))
	p.printf(format, args...)
	p.printf("\n")
}

func attrString(attrs []Attr) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, fmt.Sprintf("%s = %q", a.Name, a.Value))
	}
	return "(* " + strings.Join(parts, ", ") + " *)"
}

func (p *printer) emitModule(m *Module) {
	if len(m.Attrs) > 0 {
		p.line("%s", attrString(m.Attrs))
	}
	p.line("module %s (", m.Name)
	p.indent++
	for i, port := range m.Ports {
		sep := ","
		if i == len(m.Ports)-1 {
			sep = ""
		}
		p.line("%s wire %s%s%s", port.Dir, rangeString(port.Width), port.Name, sep)
	}
	p.indent--
	p.line(");")
	p.indent++
	for _, d := range m.Decls {
		kind := "wire"
		if d.Reg {
			kind = "reg"
		}
		if d.Depth > 0 {
			p.line("%s %s%s [0:%d];", kind, rangeString(d.Width), d.Name, d.Depth-1)
			continue
		}
		p.line("%s %s%s;", kind, rangeString(d.Width), d.Name)
	}
	for _, s := range m.Stmts {
		p.emitStmt(s)
	}
	p.indent--
	p.line("endmodule")
}

func (p *printer) emitStmt(s Stmt) {
	switch st := s.(type) {
	case *Assign:
		p.line("assign %s = %s;", st.Lhs, st.Rhs)
	case *Instance:
		p.emitInstance(st)
	case *Always:
		p.line("always @(%s) begin", st.Event)
		p.block(st.Body)
		p.line("end")
	case *Initial:
		p.line("initial begin")
		p.block(st.Body)
		p.line("end")
	}
}

func (p *printer) block(body []string) {
	p.indent++
	for _, l := range body {
		p.line("%s", l)
	}
	p.indent--
}

func (p *printer) emitInstance(inst *Instance) {
	if len(inst.Attrs) > 0 {
		p.line("%s", attrString(inst.Attrs))
	}
	if len(inst.Params) == 0 {
		p.line("%s %s (", inst.Prim, inst.Name)
	} else {
		p.line("%s # (", inst.Prim)
		p.indent++
		for i, param := range inst.Params {
			sep := ","
			if i == len(inst.Params)-1 {
				sep = ""
			}
			p.line(".%s(%s)%s", param.Name, param.Value, sep)
		}
		p.indent--
		p.line(") %s (", inst.Name)
	}
	p.indent++
	for i, c := range inst.Conns {
		sep := ","
		if i == len(inst.Conns)-1 {
			sep = ""
		}
		p.line(".%s(%s)%s", c.Port, c.Expr, sep)
	}
	p.indent--
	p.line(");")
}
