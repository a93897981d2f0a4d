package cengines

import (
	"sort"

	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// Mapper rewrites logical qubit ids into physical ones. Every Measure it
// forwards carries a LogicalQubitIDTag with the id the user saw.
//
// A logical id's mapping is frozen once a Command using it has been forwarded
// and stays frozen until the qubit is deallocated.
type Mapper struct {
	BasicEngine
	derive  func(logical int) int
	mapping map[int]int
	frozen  map[int]bool
}

// NewMapper returns a mapper driven by an explicit table, see SetMapping.
func NewMapper() *Mapper {
	return &Mapper{mapping: make(map[int]int), frozen: make(map[int]bool)}
}

// NewManualMapper derives the physical id of every allocated qubit from fn.
func NewManualMapper(fn func(logical int) int) *Mapper {
	m := NewMapper()
	m.derive = fn
	return m
}

// SetMapping replaces the whole table. Frozen ids must keep their mapping.
func (m *Mapper) SetMapping(mapping map[int]int) error {
	used := make(map[int]int, len(mapping))
	for l, p := range mapping {
		if other, ok := used[p]; ok {
			return qerr.InvalidArgument("logical qubits %d and %d both map to %d", min(l, other), max(l, other), p)
		}
		used[p] = l
	}
	for l := range m.frozen {
		if p, ok := mapping[l]; !ok || p != m.mapping[l] {
			return qerr.InvalidState("mapping of qubit %d is in use and cannot change", l)
		}
	}
	m.mapping = make(map[int]int, len(mapping))
	for l, p := range mapping {
		m.mapping[l] = p
	}
	return nil
}

// SetQubitMapping maps a single logical id.
func (m *Mapper) SetQubitMapping(logical, physical int) error {
	if err := m.canMap(logical, physical); err != nil {
		return err
	}
	m.mapping[logical] = physical
	return nil
}

func (m *Mapper) canMap(logical, physical int) error {
	if cur, ok := m.mapping[logical]; ok && cur == physical {
		return nil
	}
	if m.frozen[logical] {
		return qerr.InvalidState("mapping of qubit %d is in use and cannot change", logical)
	}
	for l, p := range m.mapping {
		if p == physical && l != logical {
			return qerr.InvalidArgument("physical qubit %d already holds logical qubit %d", physical, l)
		}
	}
	return nil
}

// CurrentMapping returns a copy of the table.
func (m *Mapper) CurrentMapping() map[int]int {
	out := make(map[int]int, len(m.mapping))
	for l, p := range m.mapping {
		out[l] = p
	}
	return out
}

// Physical resolves a logical id.
func (m *Mapper) Physical(logical int) (int, error) {
	p, ok := m.mapping[logical]
	if !ok {
		return 0, qerr.Lookup("qubit %d has no physical mapping", logical)
	}
	return p, nil
}

// Logical is the reverse lookup of Physical.
func (m *Mapper) Logical(physical int) (int, error) {
	for l, p := range m.mapping {
		if p == physical {
			return l, nil
		}
	}
	return 0, qerr.Lookup("physical qubit %d holds no logical qubit", physical)
}

// check reports why cmd could not be mapped, without changing the table.
func (m *Mapper) check(cmd *ops.Command) error {
	_, err := m.translate(cmd)
	return err
}

// translate maps cmd without changing the table. An Allocate is mapped to
// the id the derive function would assign. With a derive function an
// unmapped id may belong to an Allocate still held by an earlier stage, so
// it is mapped to its derived id.
func (m *Mapper) translate(cmd *ops.Command) (*ops.Command, error) {
	if m.derive == nil {
		return cmd.WithMappedIDs(m.Physical)
	}
	if _, ok := cmd.Gate().(ops.AllocateGate); ok {
		l := cmd.Targets()[0].ID
		p := m.derive(l)
		if err := m.canMap(l, p); err != nil {
			return nil, err
		}
		return cmd.WithMappedIDs(func(int) (int, error) { return p, nil })
	}
	return cmd.WithMappedIDs(func(l int) (int, error) {
		if p, ok := m.mapping[l]; ok {
			return p, nil
		}
		return m.derive(l), nil
	})
}

// IsAvailable refuses commands naming unmapped qubits and otherwise asks
// the rest of the chain about the mapped command.
func (m *Mapper) IsAvailable(cmd *ops.Command) bool {
	mapped, err := m.translate(cmd)
	if err != nil {
		return false
	}
	return m.BasicEngine.IsAvailable(mapped)
}

func (m *Mapper) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if err := m.receiveOne(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapper) receiveOne(cmd *ops.Command) error {
	switch cmd.Gate().(type) {
	case ops.AllocateGate:
		if m.derive != nil {
			l := cmd.Targets()[0].ID
			if err := m.SetQubitMapping(l, m.derive(l)); err != nil {
				return err
			}
		}
	case ops.MeasureGate:
		cmd = cmd.WithTags(ops.LogicalQubitIDTag{ID: cmd.Targets()[0].ID})
	}

	mapped, err := cmd.WithMappedIDs(m.Physical)
	if err != nil {
		return err
	}
	logical := usedIDs(cmd)
	for _, l := range logical {
		m.frozen[l] = true
	}
	if err := m.Send([]*ops.Command{mapped}); err != nil {
		return err
	}

	if _, ok := cmd.Gate().(ops.DeallocateGate); ok {
		for _, l := range logical {
			if _, ok := m.mapping[l]; !ok {
				return qerr.RuntimeInconsistency("mapping of qubit %d vanished before its deallocation", l)
			}
			delete(m.mapping, l)
			delete(m.frozen, l)
		}
	}
	return nil
}

func usedIDs(cmd *ops.Command) []int {
	var ids []int
	for _, group := range cmd.AllQubits() {
		for _, r := range group {
			if r.Valid() {
				ids = append(ids, r.ID)
			}
		}
	}
	sort.Ints(ids)
	return ids
}
