package ops

import (
	"fmt"
	"sort"
	"strings"

	"qpipe/internal/qerr"
)

// Command is one instruction flowing through an engine chain: a gate, its
// ordered target groups, a control set and tags. Commands are immutable;
// stages derive new ones with WithTags and WithMappedIDs.
type Command struct {
	engine   Owner
	gate     Gate
	qubits   [][]WeakQubitRef
	controls []WeakQubitRef
	tags     []Tag
}

// NewCommand validates and builds a Command. Controls are kept as a set
// ordered by id.
func NewCommand(gate Gate, qubits [][]WeakQubitRef, controls []WeakQubitRef, tags ...Tag) (*Command, error) {
	if gate == nil {
		return nil, qerr.InvalidArgument("command without gate")
	}
	_, isFlush := gate.(FlushGate)
	if _, ok := gate.(MeasureGate); ok && len(controls) > 0 {
		return nil, qerr.InvalidArgument("measurement cannot have %d control qubits", len(controls))
	}
	if len(qubits) == 0 {
		return nil, qerr.InvalidArgument("%s without target qubits", gate)
	}
	if _, ok := gate.(MeasureGate); ok && (len(qubits) != 1 || len(qubits[0]) != 1) {
		return nil, qerr.InvalidArgument("measurement takes exactly one qubit")
	}

	var engine Owner
	first := true
	seen := make(map[int]bool)
	check := func(r WeakQubitRef) error {
		if first {
			engine, first = r.Engine, false
		} else if r.Engine != engine {
			return qerr.InvalidArgument("%s mixes qubits of different engines", gate)
		}
		if !r.Valid() {
			if isFlush {
				return nil
			}
			return qerr.InvalidState("%s references a deallocated qubit", gate)
		}
		return nil
	}

	groups := make([][]WeakQubitRef, len(qubits))
	for i, group := range qubits {
		if len(group) == 0 {
			return nil, qerr.InvalidArgument("%s has an empty qubit group", gate)
		}
		for _, r := range group {
			if err := check(r); err != nil {
				return nil, err
			}
			if r.Valid() {
				if seen[r.ID] {
					return nil, qerr.InvalidArgument("%s targets qubit %d twice", gate, r.ID)
				}
				seen[r.ID] = true
			}
		}
		groups[i] = append([]WeakQubitRef(nil), group...)
	}

	ctrls := make([]WeakQubitRef, 0, len(controls))
	dup := make(map[int]bool)
	for _, r := range controls {
		if err := check(r); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, qerr.InvalidArgument("qubit %d is both control and target of %s", r.ID, gate)
		}
		if dup[r.ID] {
			continue
		}
		dup[r.ID] = true
		ctrls = append(ctrls, r)
	}
	sortRefs(ctrls)

	return &Command{
		engine:   engine,
		gate:     gate,
		qubits:   groups,
		controls: ctrls,
		tags:     append([]Tag(nil), tags...),
	}, nil
}

func sortRefs(refs []WeakQubitRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
}

func (c *Command) Gate() Gate { return c.gate }

// Engine returns the engine owning the command's qubits.
func (c *Command) Engine() Owner { return c.engine }

// Qubits returns a copy of the target groups.
func (c *Command) Qubits() [][]WeakQubitRef {
	out := make([][]WeakQubitRef, len(c.qubits))
	for i, g := range c.qubits {
		out[i] = append([]WeakQubitRef(nil), g...)
	}
	return out
}

// Controls returns a copy of the control set, ordered by id.
func (c *Command) Controls() []WeakQubitRef { return append([]WeakQubitRef(nil), c.controls...) }

func (c *Command) ControlCount() int { return len(c.controls) }

func (c *Command) Tags() []Tag { return append([]Tag(nil), c.tags...) }

// AllQubits returns the control set followed by every target group.
func (c *Command) AllQubits() [][]WeakQubitRef {
	return append([][]WeakQubitRef{c.Controls()}, c.Qubits()...)
}

// Targets returns the target refs flattened in order.
func (c *Command) Targets() []WeakQubitRef {
	var out []WeakQubitRef
	for _, g := range c.qubits {
		out = append(out, g...)
	}
	return out
}

// WithTags returns a copy with tags appended.
func (c *Command) WithTags(tags ...Tag) *Command {
	cp := c.clone()
	cp.tags = append(cp.tags, tags...)
	return cp
}

// WithMappedIDs returns a copy whose qubit ids went through fn. Refs with id
// -1 are kept as they are.
func (c *Command) WithMappedIDs(fn func(id int) (int, error)) (*Command, error) {
	cp := c.clone()
	remap := func(refs []WeakQubitRef) error {
		for i, r := range refs {
			if !r.Valid() {
				continue
			}
			id, err := fn(r.ID)
			if err != nil {
				return err
			}
			refs[i].ID = id
		}
		return nil
	}
	for _, g := range cp.qubits {
		if err := remap(g); err != nil {
			return nil, err
		}
	}
	if err := remap(cp.controls); err != nil {
		return nil, err
	}
	sortRefs(cp.controls)
	return cp, nil
}

func (c *Command) clone() *Command {
	return &Command{
		engine:   c.engine,
		gate:     c.gate,
		qubits:   c.Qubits(),
		controls: c.Controls(),
		tags:     c.Tags(),
	}
}

func (c *Command) String() string {
	var sb strings.Builder
	switch n := len(c.controls); {
	case n == 1:
		sb.WriteString("C")
	case n > 1:
		fmt.Fprintf(&sb, "C%d", n)
	}
	sb.WriteString(c.gate.String())
	sb.WriteString(" | ( ")
	groups := c.qubits
	if len(c.controls) > 0 {
		groups = append([][]WeakQubitRef{c.controls}, groups...)
	}
	for i, g := range groups {
		if i > 0 {
			sb.WriteString(", ")
		}
		ids := make([]string, len(g))
		for j, r := range g {
			ids[j] = fmt.Sprint(r.ID)
		}
		sb.WriteString("Qubit[" + strings.Join(ids, ",") + "]")
	}
	sb.WriteString(" )")
	return sb.String()
}
