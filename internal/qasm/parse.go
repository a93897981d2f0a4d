package qasm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"qpipe/internal/qerr"
)

// Pre-compiled regexps for QASM parsing. Statements arrive trimmed and
// without their trailing semicolon.
var (
	qregRegex    = regexp.MustCompile(`^qreg\s+([A-Za-z_]\w*)\s*\[\s*(\d+)\s*\]$`)
	cregRegex    = regexp.MustCompile(`^creg\s+([A-Za-z_]\w*)\s*\[\s*(\d+)\s*\]$`)
	measureRegex = regexp.MustCompile(`^measure\s+(.+?)\s*->\s*(.+)$`)
	gateRegex    = regexp.MustCompile(`^([A-Za-z]\w*)\s*(?:\(([^)]*)\))?\s+(.+)$`)
	operandRegex = regexp.MustCompile(`^([A-Za-z_]\w*)(?:\s*\[\s*(\d+)\s*\])?$`)
	pragmaRegex  = regexp.MustCompile(`^//\s*qpipe:\s*(\w+)\s*(.*)$`)
)

type parser struct {
	prog *Program
	line int
}

// Parse reads OpenQASM 2.0 source. Errors name the offending line and
// classify as qerr.ErrInvalidArgument.
func Parse(src string) (*Program, error) {
	p := &parser{prog: &Program{}}
	for i, raw := range strings.Split(src, "\n") {
		p.line = i + 1
		line := strings.TrimSpace(raw)
		if m := pragmaRegex.FindStringSubmatch(line); m != nil {
			if err := p.pragma(strings.ToLower(m[1]), strings.Fields(m[2])); err != nil {
				return nil, err
			}
			continue
		}
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := p.statement(stmt); err != nil {
				return nil, err
			}
		}
	}
	return p.prog, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return qerr.InvalidArgument("line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func (p *parser) statement(s string) error {
	switch {
	case strings.HasPrefix(s, "OPENQASM"), strings.HasPrefix(s, "include"):
		return nil
	case strings.HasPrefix(s, "barrier"):
		return nil
	}

	if m := qregRegex.FindStringSubmatch(s); m != nil {
		return p.declare(&p.prog.QRegs, m[1], m[2])
	}
	if m := cregRegex.FindStringSubmatch(s); m != nil {
		return p.declare(&p.prog.CRegs, m[1], m[2])
	}
	if m := measureRegex.FindStringSubmatch(s); m != nil {
		return p.measure(m[1], m[2])
	}
	if m := gateRegex.FindStringSubmatch(s); m != nil {
		return p.gate(strings.ToLower(m[1]), m[2], s, m[3])
	}
	return p.errorf("cannot parse %q", s)
}

func (p *parser) declare(regs *[]Register, name, size string) error {
	n, err := strconv.Atoi(size)
	if err != nil || n <= 0 {
		return p.errorf("register %s needs a positive size", name)
	}
	if _, ok := p.prog.qreg(name); ok {
		return p.errorf("register %s declared twice", name)
	}
	if _, ok := p.prog.creg(name); ok {
		return p.errorf("register %s declared twice", name)
	}
	*regs = append(*regs, Register{Name: name, Size: n})
	return nil
}

// operand resolves "r[i]" to one bit or a bare "r" to every bit of r.
func (p *parser) operand(s string, quantum bool) ([]Operand, error) {
	s = strings.TrimSpace(s)
	m := operandRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, p.errorf("bad operand %q", s)
	}
	lookup, kind := p.prog.creg, "creg"
	if quantum {
		lookup, kind = p.prog.qreg, "qreg"
	}
	reg, ok := lookup(m[1])
	if !ok {
		return nil, p.errorf("unknown %s %s", kind, m[1])
	}
	if m[2] == "" {
		out := make([]Operand, reg.Size)
		for i := range out {
			out[i] = Operand{Reg: reg.Name, Index: i}
		}
		return out, nil
	}
	idx, _ := strconv.Atoi(m[2])
	if idx >= reg.Size {
		return nil, p.errorf("%s has %d bits, index %d out of range", reg.Name, reg.Size, idx)
	}
	return []Operand{{Reg: reg.Name, Index: idx}}, nil
}

func (p *parser) measure(src, dst string) error {
	qs, err := p.operand(src, true)
	if err != nil {
		return err
	}
	cs, err := p.operand(dst, false)
	if err != nil {
		return err
	}
	if len(qs) != len(cs) {
		return p.errorf("measure of %d qubits into %d bits", len(qs), len(cs))
	}
	for i := range qs {
		p.add(Instruction{Name: "measure", Args: qs[i : i+1], Dest: cs[i]})
	}
	return nil
}

func (p *parser) gate(name, param, stmt, rest string) error {
	spec, ok := gateSpecs[name]
	if !ok {
		return p.errorf("unsupported statement %q", stmt)
	}
	var angle float64
	switch {
	case spec.param && param == "":
		return p.errorf("%s needs a parameter", name)
	case !spec.param && param != "":
		return p.errorf("%s takes no parameter", name)
	case spec.param:
		v, err := parseAngle(param)
		if err != nil {
			return p.errorf("%s: %v", name, err)
		}
		angle = v
	}

	parts := strings.Split(rest, ",")
	if len(parts) != spec.controls+spec.targets {
		return p.errorf("%s takes %d operands, got %d", name, spec.controls+spec.targets, len(parts))
	}
	var resolved [][]Operand
	for _, part := range parts {
		bits, err := p.operand(part, true)
		if err != nil {
			return err
		}
		resolved = append(resolved, bits)
	}

	// A bare register broadcasts a single-qubit gate over all its qubits.
	if len(resolved) == 1 && len(resolved[0]) > 1 && spec.targets == 1 {
		for _, o := range resolved[0] {
			p.add(Instruction{Name: name, Args: []Operand{o}, Angle: angle})
		}
		return nil
	}
	args := make([]Operand, 0, len(resolved))
	seen := make(map[Operand]bool)
	for i, r := range resolved {
		if len(r) != 1 {
			return p.errorf("operand %q of %s must name a single qubit", strings.TrimSpace(parts[i]), name)
		}
		if seen[r[0]] {
			return p.errorf("%s uses %s twice", name, r[0])
		}
		seen[r[0]] = true
		args = append(args, r[0])
	}
	p.add(Instruction{Name: name, Args: args, Angle: angle})
	return nil
}

func (p *parser) pragma(op string, fields []string) error {
	regArg := func(s string) error {
		if _, ok := p.prog.qreg(s); !ok {
			return p.errorf("unknown qreg %s", s)
		}
		return nil
	}
	switch op {
	case "add", "sub":
		if len(fields) != 2 {
			return p.errorf("qpipe %s wants a register and an amount", op)
		}
		if err := regArg(fields[0]); err != nil {
			return err
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return p.errorf("bad amount %q", fields[1])
		}
		p.add(Instruction{Name: op, Regs: fields[:1], Amount: n})
	case "addreg", "subreg":
		if len(fields) != 2 {
			return p.errorf("qpipe %s wants two registers", op)
		}
		for _, f := range fields {
			if err := regArg(f); err != nil {
				return err
			}
		}
		if fields[0] == fields[1] {
			return p.errorf("qpipe %s needs two different registers", op)
		}
		p.add(Instruction{Name: op, Regs: fields})
	default:
		return p.errorf("unknown qpipe pragma %q", op)
	}
	return nil
}

func (p *parser) add(in Instruction) {
	in.Line = p.line
	p.prog.Instructions = append(p.prog.Instructions, in)
}
