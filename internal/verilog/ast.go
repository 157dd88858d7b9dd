// Package verilog builds Verilog modules from programs, either structurally
// from placed target primitives or behaviorally from the IR.
package verilog

import "fmt"

// Attr is a synthesis attribute such as (* BEL = "A6LUT" *).
type Attr struct {
	Name  string
	Value string
}

// PortDir is the direction of a module port.
type PortDir int

const (
	Input PortDir = iota
	Output
)

func (d PortDir) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Port is a module port; Width 1 prints as a scalar.
type Port struct {
	Dir   PortDir
	Name  string
	Width uint64
}

// Decl declares a net, a variable, or a memory when Depth is set.
type Decl struct {
	Reg   bool
	Name  string
	Width uint64
	Depth uint64
}

// Stmt is a module item.
type Stmt interface {
	isStmt()
}

// Assign is a continuous assignment.
type Assign struct {
	Lhs string
	Rhs string
}

// Param is a parameter override of an instance.
type Param struct {
	Name  string
	Value string
}

// Conn binds an instance port to an expression. An empty Expr leaves the
// port open.
type Conn struct {
	Port string
	Expr string
}

// Instance instantiates a primitive.
type Instance struct {
	Attrs  []Attr
	Prim   string
	Name   string
	Params []Param
	Conns  []Conn
}

// Always is a process triggered by Event with the given body lines.
type Always struct {
	Event string
	Body  []string
}

// Initial is an initial block.
type Initial struct {
	Body []string
}

func (*Assign) isStmt()   {}
func (*Instance) isStmt() {}
func (*Always) isStmt()   {}
func (*Initial) isStmt()  {}

// Module is a Verilog module.
type Module struct {
	Attrs []Attr
	Name  string
	Ports []Port
	Decls []Decl
	Stmts []Stmt
}

func (m *Module) AddPort(dir PortDir, name string, width uint64) {
	m.Ports = append(m.Ports, Port{Dir: dir, Name: name, Width: width})
}

func (m *Module) AddDecl(d Decl) { m.Decls = append(m.Decls, d) }

func (m *Module) Add(s Stmt) { m.Stmts = append(m.Stmts, s) }

func (m *Module) Assign(lhs, rhs string) { m.Add(&Assign{Lhs: lhs, Rhs: rhs}) }

// Instances returns every instance of the module.
func (m *Module) Instances() []*Instance {
	var out []*Instance
	for _, s := range m.Stmts {
		if inst, ok := s.(*Instance); ok {
			out = append(out, inst)
		}
	}
	return out
}

// Param looks up a parameter value of the instance.
func (i *Instance) Param(name string) (string, bool) {
	for _, p := range i.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Conn looks up the expression bound to a port of the instance.
func (i *Instance) Conn(port string) (string, bool) {
	for _, c := range i.Conns {
		if c.Port == port {
			return c.Expr, true
		}
	}
	return "", false
}

// setParam overrides an existing parameter or appends it.
func (i *Instance) setParam(name, value string) {
	for k := range i.Params {
		if i.Params[k].Name == name {
			i.Params[k].Value = value
			return
		}
	}
	i.Params = append(i.Params, Param{Name: name, Value: value})
}

func (i *Instance) setConn(port, expr string) {
	for k := range i.Conns {
		if i.Conns[k].Port == port {
			i.Conns[k].Expr = expr
			return
		}
	}
	i.Conns = append(i.Conns, Conn{Port: port, Expr: expr})
}

func rangeString(width uint64) string {
	if width <= 1 {
		return ""
	}
	return fmt.Sprintf("[%d:0] ", width-1)
}
