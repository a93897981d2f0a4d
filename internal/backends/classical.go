// Package backends holds the terminal engines of a chain: a classical
// register executor, a circuit drawer, a command printer and a resource
// counter. All of them forward what they receive when they are not last.
package backends

import (
	"strings"

	"go.uber.org/zap"

	"qpipe/internal/cengines"
	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// MaxRegisterWidth is the widest register ReadRegister, WriteRegister and
// arithmetic gates accept.
const MaxRegisterWidth = 62

// OverflowPolicy decides what an arithmetic result outside [0, 2^W) does.
type OverflowPolicy int

const (
	// OverflowReject fails the command and leaves every register unchanged.
	OverflowReject OverflowPolicy = iota
	// OverflowWrap reduces results modulo 2^W.
	OverflowWrap
)

func (p OverflowPolicy) String() string {
	if p == OverflowWrap {
		return "wrap"
	}
	return "reject"
}

// ParseOverflowPolicy accepts "reject" (or "") and "wrap".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return OverflowReject, nil
	case "wrap":
		return OverflowWrap, nil
	}
	return OverflowReject, qerr.InvalidArgument("unknown overflow policy %q", s)
}

// ClassicalOption configures a ClassicalRegisterBackend.
type ClassicalOption func(*ClassicalRegisterBackend)

func WithOverflowPolicy(p OverflowPolicy) ClassicalOption {
	return func(b *ClassicalRegisterBackend) { b.policy = p }
}

func WithClassicalLogger(l *zap.Logger) ClassicalOption {
	return func(b *ClassicalRegisterBackend) { b.logger = l }
}

// ClassicalRegisterBackend executes circuits made of X, controlled X and
// arithmetic gates on plain bits. Every qubit holds 0 or 1 at all times.
type ClassicalRegisterBackend struct {
	cengines.BasicEngine
	policy    OverflowPolicy
	logger    *zap.Logger
	bits      map[int]bool // by physical id
	executing bool
}

func NewClassicalRegisterBackend(opts ...ClassicalOption) *ClassicalRegisterBackend {
	b := &ClassicalRegisterBackend{
		logger: zap.NewNop(),
		bits:   make(map[int]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *ClassicalRegisterBackend) Policy() OverflowPolicy { return b.policy }

// physical translates a logical id through the chain's mapper, if any.
func (b *ClassicalRegisterBackend) physical(logical int) (int, error) {
	if c := b.Chain(); c != nil && c.Mapper() != nil {
		return c.Mapper().Physical(logical)
	}
	return logical, nil
}

func (b *ClassicalRegisterBackend) bit(physical int) (bool, error) {
	v, ok := b.bits[physical]
	if !ok {
		return false, qerr.Lookup("qubit %d is not allocated on this backend", physical)
	}
	return v, nil
}

// ReadBit returns the bit held by the logical qubit ref.
func (b *ClassicalRegisterBackend) ReadBit(ref ops.WeakQubitRef) (int, error) {
	p, err := b.physical(ref.ID)
	if err != nil {
		return 0, err
	}
	v, err := b.bit(p)
	if err != nil {
		return 0, err
	}
	if v {
		return 1, nil
	}
	return 0, nil
}

// WriteBit sets the logical qubit ref to value, which must be 0 or 1.
func (b *ClassicalRegisterBackend) WriteBit(ref ops.WeakQubitRef, value int) error {
	if value != 0 && value != 1 {
		return qerr.InvalidArgument("bit value must be 0 or 1, got %d", value)
	}
	p, err := b.physical(ref.ID)
	if err != nil {
		return err
	}
	if _, err := b.bit(p); err != nil {
		return err
	}
	b.bits[p] = value == 1
	return nil
}

func (b *ClassicalRegisterBackend) physicalAll(refs []ops.WeakQubitRef) ([]int, error) {
	if len(refs) > MaxRegisterWidth {
		return nil, qerr.InvalidArgument("register of %d qubits exceeds %d", len(refs), MaxRegisterWidth)
	}
	out := make([]int, len(refs))
	for i, r := range refs {
		p, err := b.physical(r.ID)
		if err != nil {
			return nil, err
		}
		if _, err := b.bit(p); err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// ReadRegister reads refs as a little-endian unsigned integer.
func (b *ClassicalRegisterBackend) ReadRegister(refs []ops.WeakQubitRef) (int64, error) {
	ps, err := b.physicalAll(refs)
	if err != nil {
		return 0, err
	}
	return b.load(ps), nil
}

// WriteRegister stores value little-endian into refs. Nothing changes when
// value does not fit.
func (b *ClassicalRegisterBackend) WriteRegister(refs []ops.WeakQubitRef, value int64) error {
	ps, err := b.physicalAll(refs)
	if err != nil {
		return err
	}
	if value < 0 || value >= int64(1)<<len(ps) {
		return qerr.InvalidArgument("%d does not fit in %d bits", value, len(ps))
	}
	b.store(ps, value)
	return nil
}

func (b *ClassicalRegisterBackend) load(ps []int) int64 {
	var v int64
	for i, p := range ps {
		if b.bits[p] {
			v |= 1 << i
		}
	}
	return v
}

func (b *ClassicalRegisterBackend) store(ps []int, v int64) {
	for i, p := range ps {
		b.bits[p] = v&(1<<i) != 0
	}
}

func (b *ClassicalRegisterBackend) IsAvailable(cmd *ops.Command) bool {
	switch g := cmd.Gate().(type) {
	case ops.AllocateGate, ops.DeallocateGate, ops.MeasureGate, ops.FlushGate:
		return true
	case ops.XGate:
		return len(cmd.Targets()) == 1
	case *ops.MathGate:
		groups := cmd.Qubits()
		if len(groups) != g.Arity() {
			return false
		}
		for _, grp := range groups {
			if len(grp) > MaxRegisterWidth {
				return false
			}
		}
		return true
	}
	return false
}

func (b *ClassicalRegisterBackend) Receive(cmds []*ops.Command) error {
	if b.executing {
		return qerr.RuntimeInconsistency("classical backend received commands while executing")
	}
	b.executing = true
	defer func() { b.executing = false }()

	for _, cmd := range cmds {
		if err := b.execute(cmd); err != nil {
			return err
		}
	}
	return b.Send(cmds)
}

func (b *ClassicalRegisterBackend) execute(cmd *ops.Command) error {
	b.logger.Debug("execute", zap.Stringer("cmd", cmd))

	switch g := cmd.Gate().(type) {
	case ops.FlushGate:
		return nil
	case ops.AllocateGate:
		id := cmd.Targets()[0].ID
		if _, ok := b.bits[id]; ok {
			return qerr.RuntimeInconsistency("qubit %d allocated twice", id)
		}
		b.bits[id] = false
		return nil
	case ops.DeallocateGate:
		id := cmd.Targets()[0].ID
		if _, err := b.bit(id); err != nil {
			return err
		}
		delete(b.bits, id)
		return nil
	case ops.MeasureGate:
		return b.measure(cmd)
	case ops.XGate:
		t := cmd.Targets()
		if len(t) != 1 {
			return qerr.InvalidArgument("X on %d qubits cannot be executed classically", len(t))
		}
		v, err := b.bit(t[0].ID)
		if err != nil {
			return err
		}
		on, err := b.controlsOn(cmd)
		if err != nil || !on {
			return err
		}
		b.bits[t[0].ID] = !v
		return nil
	case *ops.MathGate:
		return b.arithmetic(g, cmd)
	}
	return qerr.InvalidArgument("%s cannot be executed classically", cmd.Gate())
}

func (b *ClassicalRegisterBackend) controlsOn(cmd *ops.Command) (bool, error) {
	on := true
	for _, c := range cmd.Controls() {
		v, err := b.bit(c.ID)
		if err != nil {
			return false, err
		}
		on = on && v
	}
	return on, nil
}

func (b *ClassicalRegisterBackend) measure(cmd *ops.Command) error {
	t := cmd.Targets()[0]
	v, err := b.bit(t.ID)
	if err != nil {
		return err
	}
	logical := t.ID
	if id, ok := ops.LogicalID(cmd.Tags()); ok {
		logical = id
	}
	main := b.MainEngine()
	if main == nil {
		return qerr.RuntimeInconsistency("backend is not attached to an engine")
	}
	return main.SetMeasurementResult(ops.WeakQubitRef{Engine: cmd.Engine(), ID: logical}, v)
}

func (b *ClassicalRegisterBackend) arithmetic(g *ops.MathGate, cmd *ops.Command) error {
	groups := cmd.Qubits()
	regs := make([][]int, len(groups))
	values := make([]int64, len(groups))
	for i, grp := range groups {
		if len(grp) > MaxRegisterWidth {
			return qerr.InvalidArgument("register of %d qubits exceeds %d", len(grp), MaxRegisterWidth)
		}
		regs[i] = make([]int, len(grp))
		for j, r := range grp {
			if _, err := b.bit(r.ID); err != nil {
				return err
			}
			regs[i][j] = r.ID
		}
		values[i] = b.load(regs[i])
	}
	on, err := b.controlsOn(cmd)
	if err != nil || !on {
		return err
	}

	out, err := g.Evaluate(values)
	if err != nil {
		return err
	}
	for i, v := range out {
		limit := int64(1) << len(regs[i])
		if v >= 0 && v < limit {
			continue
		}
		if b.policy == OverflowReject {
			return qerr.InvalidArgument("%s: result %d does not fit in %d bits", g, v, len(regs[i]))
		}
		out[i] = ((v % limit) + limit) % limit
	}
	for i, v := range out {
		b.store(regs[i], v)
	}
	return nil
}
