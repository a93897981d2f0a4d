package qasm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"qpipe/internal/cengines"
	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// Result is what a run leaves in the classical registers.
type Result struct {
	// Cregs holds every creg as a little-endian integer.
	Cregs map[string]int64
	// Executed counts the instructions issued.
	Executed int

	order []string
}

func (r *Result) String() string {
	var sb strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&sb, "%s = %d\n", name, r.Cregs[name])
	}
	return sb.String()
}

// RunOption configures Program.Run.
type RunOption func(*runConfig)

type runConfig struct {
	inspect func(map[string]ops.Qureg) error
}

// WithInspect calls fn after the last instruction has been flushed and
// before the qubits are released.
func WithInspect(fn func(qregs map[string]ops.Qureg) error) RunOption {
	return func(c *runConfig) { c.inspect = fn }
}

// Run allocates the program's registers on eng, issues the first upTo
// instructions (all of them when upTo is negative or too large), and
// releases every qubit before returning.
func (p *Program) Run(eng *cengines.MainEngine, upTo int, opts ...RunOption) (res *Result, err error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if upTo < 0 || upTo > len(p.Instructions) {
		upTo = len(p.Instructions)
	}

	qregs := make(map[string]ops.Qureg, len(p.QRegs))
	defer func() {
		for _, r := range p.QRegs {
			if relErr := qregs[r.Name].Release(); relErr != nil && err == nil {
				err = relErr
			}
		}
	}()
	for _, r := range p.QRegs {
		reg, allocErr := eng.AllocateQureg(r.Size)
		qregs[r.Name] = reg
		if allocErr != nil {
			return nil, allocErr
		}
	}

	cbits := make(map[string][]bool, len(p.CRegs))
	res = &Result{Cregs: make(map[string]int64, len(p.CRegs))}
	for _, r := range p.CRegs {
		cbits[r.Name] = make([]bool, r.Size)
		res.order = append(res.order, r.Name)
	}

	for _, in := range p.Instructions[:upTo] {
		if err := exec(in, qregs, cbits); err != nil {
			return nil, errors.Wrapf(err, "line %d: %s", in.Line, in)
		}
		res.Executed++
	}
	if err := eng.Flush(); err != nil {
		return nil, err
	}
	if cfg.inspect != nil {
		if err := cfg.inspect(qregs); err != nil {
			return nil, err
		}
	}

	for name, bits := range cbits {
		var v int64
		for i, b := range bits {
			if b {
				v |= 1 << i
			}
		}
		res.Cregs[name] = v
	}
	return res, nil
}

func exec(in Instruction, qregs map[string]ops.Qureg, cbits map[string][]bool) error {
	qubit := func(o Operand) *ops.Qubit { return qregs[o.Reg][o.Index] }

	switch in.Name {
	case "measure":
		q := qubit(in.Args[0])
		if err := ops.Apply(ops.Measure, ops.Qureg{q}); err != nil {
			return err
		}
		v, err := q.Measured()
		if err != nil {
			return err
		}
		cbits[in.Dest.Reg][in.Dest.Index] = v
		return nil
	case "add":
		return ops.Apply(ops.AddConstant(in.Amount), qregs[in.Regs[0]])
	case "sub":
		return ops.Apply(ops.SubtractConstant(in.Amount), qregs[in.Regs[0]])
	case "addreg":
		return ops.Apply(ops.AddRegister(), qregs[in.Regs[0]], qregs[in.Regs[1]])
	case "subreg":
		return ops.Apply(ops.SubtractRegister(), qregs[in.Regs[0]], qregs[in.Regs[1]])
	}

	spec, ok := gateSpecs[in.Name]
	if !ok {
		return qerr.InvalidArgument("unknown instruction %q", in.Name)
	}
	var ctrls, targets ops.Qureg
	for i, o := range in.Args {
		if i < spec.controls {
			ctrls = append(ctrls, qubit(o))
		} else {
			targets = append(targets, qubit(o))
		}
	}
	return ops.ApplyControlled(spec.gate(in.Angle), ctrls, targets)
}
