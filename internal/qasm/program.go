// Package qasm reads a subset of OpenQASM 2.0 and runs it through an engine
// pipeline.
//
// Besides gates and measurements it understands whole-register arithmetic
// written as comment pragmas, which a classical backend can execute:
//
//	// qpipe: add a 5
//	// qpipe: sub a 2
//	// qpipe: addreg a b
//	// qpipe: subreg a b
package qasm

import (
	"fmt"
	"strings"

	"qpipe/internal/ops"
)

// Register is a declared qreg or creg.
type Register struct {
	Name string
	Size int
}

// Operand names one bit of a register.
type Operand struct {
	Reg   string
	Index int
}

func (o Operand) String() string { return fmt.Sprintf("%s[%d]", o.Reg, o.Index) }

// Instruction is one executable statement.
type Instruction struct {
	Line int
	// Name is the lower-case gate name, "measure", or one of the pragma
	// operations "add", "sub", "addreg", "subreg".
	Name string
	// Args are qubit operands in source order, controls first.
	Args  []Operand
	Angle float64
	// Dest is the classical bit written by a measurement.
	Dest Operand
	// Regs and Amount are the operands of arithmetic pragmas.
	Regs   []string
	Amount int64
}

// gateSpec describes a gate statement: how many leading operands are
// controls, how many follow as targets, and the gate to issue.
type gateSpec struct {
	controls int
	targets  int
	param    bool
	gate     func(angle float64) ops.Gate
}

func fixed(g ops.Gate) func(float64) ops.Gate { return func(float64) ops.Gate { return g } }

var gateSpecs = map[string]gateSpec{
	"x":     {targets: 1, gate: fixed(ops.X)},
	"y":     {targets: 1, gate: fixed(ops.Y)},
	"z":     {targets: 1, gate: fixed(ops.Z)},
	"h":     {targets: 1, gate: fixed(ops.H)},
	"s":     {targets: 1, gate: fixed(ops.S)},
	"sdg":   {targets: 1, gate: fixed(ops.Sdag)},
	"t":     {targets: 1, gate: fixed(ops.T)},
	"tdg":   {targets: 1, gate: fixed(ops.Tdag)},
	"rx":    {targets: 1, param: true, gate: func(a float64) ops.Gate { return ops.Rx{Angle: a} }},
	"ry":    {targets: 1, param: true, gate: func(a float64) ops.Gate { return ops.Ry{Angle: a} }},
	"rz":    {targets: 1, param: true, gate: func(a float64) ops.Gate { return ops.Rz{Angle: a} }},
	"cx":    {controls: 1, targets: 1, gate: fixed(ops.X)},
	"cy":    {controls: 1, targets: 1, gate: fixed(ops.Y)},
	"cz":    {controls: 1, targets: 1, gate: fixed(ops.Z)},
	"ch":    {controls: 1, targets: 1, gate: fixed(ops.H)},
	"crz":   {controls: 1, targets: 1, param: true, gate: func(a float64) ops.Gate { return ops.Rz{Angle: a} }},
	"ccx":   {controls: 2, targets: 1, gate: fixed(ops.X)},
	"swap":  {targets: 2, gate: fixed(ops.Swap)},
	"cswap": {controls: 1, targets: 2, gate: fixed(ops.Swap)},
}

// Program is a parsed circuit. It is not modified by Run, so one Program
// can be run any number of times.
type Program struct {
	QRegs        []Register
	CRegs        []Register
	Instructions []Instruction
}

func (p *Program) qreg(name string) (Register, bool) { return findReg(p.QRegs, name) }

func (p *Program) creg(name string) (Register, bool) { return findReg(p.CRegs, name) }

func findReg(regs []Register, name string) (Register, bool) {
	for _, r := range regs {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

// NumQubits is the total size of all quantum registers.
func (p *Program) NumQubits() int {
	n := 0
	for _, r := range p.QRegs {
		n += r.Size
	}
	return n
}

// ToQASM prints the program back as OpenQASM 2.0.
func (p *Program) ToQASM() string {
	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\n")
	sb.WriteString("include \"qelib1.inc\";\n\n")
	for _, r := range p.QRegs {
		fmt.Fprintf(&sb, "qreg %s[%d];\n", r.Name, r.Size)
	}
	for _, r := range p.CRegs {
		fmt.Fprintf(&sb, "creg %s[%d];\n", r.Name, r.Size)
	}
	if len(p.QRegs)+len(p.CRegs) > 0 {
		sb.WriteString("\n")
	}
	for _, in := range p.Instructions {
		sb.WriteString(in.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (in Instruction) String() string {
	switch in.Name {
	case "measure":
		return fmt.Sprintf("measure %s -> %s;", in.Args[0], in.Dest)
	case "add", "sub":
		return fmt.Sprintf("// qpipe: %s %s %d", in.Name, in.Regs[0], in.Amount)
	case "addreg", "subreg":
		return fmt.Sprintf("// qpipe: %s %s %s", in.Name, in.Regs[0], in.Regs[1])
	}
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	name := in.Name
	if gateSpecs[in.Name].param {
		name += "(" + formatAngle(in.Angle) + ")"
	}
	return name + " " + strings.Join(args, ", ") + ";"
}
