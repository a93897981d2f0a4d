package cengines

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// DefaultChain is the name of the chain passed to NewMainEngine.
const DefaultChain = "main"

// MainEngine is the user-facing front of the pipeline. It hands out qubit
// ids, validates every Command and fans the same Command sequence out to each
// attached chain.
type MainEngine struct {
	logger  *zap.Logger
	chains  []*Chain
	nextID  int
	live    map[int]*ops.Qubit
	results map[int]bool
	started bool
}

var _ ops.Owner = (*MainEngine)(nil)

// NewMainEngine builds an engine with a single chain: engines in order, then
// backend. A nil logger logs nothing.
func NewMainEngine(logger *zap.Logger, backend Engine, engines ...Engine) (*MainEngine, error) {
	return NewNamedMainEngine(logger, DefaultChain, backend, engines...)
}

// NewNamedMainEngine is NewMainEngine with the first chain called name.
func NewNamedMainEngine(logger *zap.Logger, name string, backend Engine, engines ...Engine) (*MainEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MainEngine{
		logger:  logger,
		live:    make(map[int]*ops.Qubit),
		results: make(map[int]bool),
	}
	if err := m.AddChain(name, backend, engines...); err != nil {
		return nil, err
	}
	return m, nil
}

// AddChain attaches a sibling chain. Every chain sees the same Commands, so
// chains can only be added before the first qubit exists.
func (m *MainEngine) AddChain(name string, backend Engine, engines ...Engine) error {
	if m.started {
		return qerr.InvalidState("chain %q added after qubits were allocated", name)
	}
	if _, ok := m.Chain(name); ok {
		return qerr.InvalidArgument("duplicate chain name %q", name)
	}
	c, err := newChain(m, name, backend, engines)
	if err != nil {
		return err
	}
	m.chains = append(m.chains, c)
	m.logger.Info("chain attached",
		zap.String("chain", name),
		zap.Int("stages", len(c.engines)),
		zap.Bool("mapped", c.mapper != nil))
	return nil
}

func (m *MainEngine) Chains() []*Chain { return append([]*Chain(nil), m.chains...) }

// Chain looks up an attached chain by name.
func (m *MainEngine) Chain(name string) (*Chain, bool) {
	for _, c := range m.chains {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Mapper returns the mapper of the named chain, nil if it has none.
func (m *MainEngine) Mapper(chain string) *Mapper {
	if c, ok := m.Chain(chain); ok {
		return c.mapper
	}
	return nil
}

// Allocate creates a qubit and announces it to every chain.
func (m *MainEngine) Allocate() (*ops.Qubit, error) {
	id := m.nextID
	cmd, err := ops.NewCommand(ops.Allocate, [][]ops.WeakQubitRef{{{Engine: m, ID: id}}}, nil)
	if err != nil {
		return nil, err
	}
	if err := m.checkAvailable(cmd); err != nil {
		return nil, err
	}
	// ids are never handed out twice, even if forwarding fails.
	m.nextID++
	q := ops.NewQubit(m, id)
	m.live[id] = q
	if err := m.forward([]*ops.Command{cmd}); err != nil {
		delete(m.live, id)
		return nil, err
	}
	m.started = true
	return q, nil
}

// AllocateQureg allocates n qubits, least significant first.
func (m *MainEngine) AllocateQureg(n int) (ops.Qureg, error) {
	if n < 0 {
		return nil, qerr.InvalidArgument("negative register width %d", n)
	}
	reg := make(ops.Qureg, 0, n)
	for i := 0; i < n; i++ {
		q, err := m.Allocate()
		if err != nil {
			return reg, err
		}
		reg = append(reg, q)
	}
	return reg, nil
}

// Deallocate retires q.
func (m *MainEngine) Deallocate(q *ops.Qubit) error { return q.Retire() }

// DeallocateRef sends Deallocate for ref to every chain and forgets the id.
// Qubit handles call it; user code goes through Deallocate or Release.
func (m *MainEngine) DeallocateRef(ref ops.WeakQubitRef) error {
	if ref.Engine != m {
		return qerr.InvalidArgument("qubit %d belongs to another engine", ref.ID)
	}
	if _, ok := m.live[ref.ID]; !ok {
		return qerr.InvalidState("qubit %d is not allocated", ref.ID)
	}
	cmd, err := ops.NewCommand(ops.Deallocate, [][]ops.WeakQubitRef{{ref}}, nil)
	if err != nil {
		return err
	}
	delete(m.live, ref.ID)
	delete(m.results, ref.ID)
	return m.forward([]*ops.Command{cmd})
}

// Receive validates cmds and forwards them to every chain. Nothing is
// forwarded unless every Command passes the checks against every chain.
func (m *MainEngine) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if err := m.validate(cmd); err != nil {
			return err
		}
	}
	return m.forward(cmds)
}

func (m *MainEngine) validate(cmd *ops.Command) error {
	if cmd.Engine() != m {
		return qerr.InvalidArgument("%s was built for another engine", cmd)
	}
	if ops.IsBookkeeping(cmd.Gate()) {
		return qerr.InvalidArgument("%s is issued by the engine itself", cmd.Gate())
	}
	for _, group := range cmd.AllQubits() {
		for _, r := range group {
			if _, ok := m.live[r.ID]; !ok {
				return qerr.InvalidState("%s uses qubit %d which is not allocated", cmd, r.ID)
			}
		}
	}
	return m.checkAvailable(cmd)
}

func (m *MainEngine) checkAvailable(cmd *ops.Command) error {
	for _, c := range m.chains {
		if c.mapper == nil {
			continue
		}
		if err := c.mapper.check(cmd); err != nil {
			return errors.Wrapf(err, "chain %q", c.name)
		}
	}
	for _, c := range m.chains {
		if !c.Head().IsAvailable(cmd) {
			return qerr.InvalidArgument("%s is not supported by chain %q", cmd, c.name)
		}
	}
	return nil
}

func (m *MainEngine) forward(cmds []*ops.Command) error {
	for _, c := range m.chains {
		if m.logger.Core().Enabled(zap.DebugLevel) {
			for _, cmd := range cmds {
				m.logger.Debug("forward", zap.String("chain", c.name), zap.Stringer("cmd", cmd))
			}
		}
		if err := c.Head().Receive(cmds); err != nil {
			return errors.Wrapf(err, "chain %q", c.name)
		}
	}
	return nil
}

// Flush pushes a Flush Command down every chain. When it returns, every
// previously sent Command has been executed.
func (m *MainEngine) Flush() error {
	cmd, err := ops.NewCommand(ops.Flush, [][]ops.WeakQubitRef{{{Engine: m, ID: -1}}}, nil)
	if err != nil {
		return err
	}
	return m.forward([]*ops.Command{cmd})
}

// SetMeasurementResult records the outcome for a logical qubit. Backends call
// it while executing a Measure; with several chains the last report wins.
// A buffered Measure can run after its qubit was released; that outcome is
// dropped.
func (m *MainEngine) SetMeasurementResult(ref ops.WeakQubitRef, value bool) error {
	if _, ok := m.live[ref.ID]; !ok {
		if ref.ID >= 0 && ref.ID < m.nextID {
			m.logger.Debug("measurement of released qubit dropped", zap.Int("qubit", ref.ID))
			return nil
		}
		return qerr.Lookup("measurement reported for unknown qubit %d", ref.ID)
	}
	m.results[ref.ID] = value
	return nil
}

// MeasurementResult returns the last recorded outcome for ref.
func (m *MainEngine) MeasurementResult(ref ops.WeakQubitRef) (bool, error) {
	v, ok := m.results[ref.ID]
	if !ok {
		return false, qerr.Lookup("qubit %d has not been measured", ref.ID)
	}
	return v, nil
}

// LiveIDs returns the ids of allocated qubits in increasing order.
func (m *MainEngine) LiveIDs() []int {
	ids := make([]int, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Close deallocates every live qubit in id order and flushes. It returns the
// first error but keeps going.
func (m *MainEngine) Close() error {
	var first error
	for _, id := range m.LiveIDs() {
		q, ok := m.live[id]
		if !ok || q.Retired() {
			continue
		}
		if err := q.Retire(); err != nil && first == nil {
			first = err
		}
	}
	if err := m.Flush(); err != nil && first == nil {
		first = err
	}
	return first
}
