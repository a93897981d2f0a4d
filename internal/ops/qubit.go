package ops

import (
	"fmt"
	"strings"

	"qpipe/internal/qerr"
)

// Owner is the engine that allocated a qubit. Commands built from a qubit are
// sent back through its owner.
type Owner interface {
	Receive(cmds []*Command) error
	DeallocateRef(ref WeakQubitRef) error
	MeasurementResult(ref WeakQubitRef) (bool, error)
	Flush() error
}

// WeakQubitRef names a qubit inside a Command without taking part in its
// lifecycle. The id may already be retired; resolving it is always a lookup.
type WeakQubitRef struct {
	Engine Owner
	ID     int
}

// Valid reports whether the ref names a (possibly still live) qubit id.
func (r WeakQubitRef) Valid() bool { return r.ID >= 0 }

func (r WeakQubitRef) String() string { return fmt.Sprintf("Qubit[%d]", r.ID) }

// qubitCell is shared by every handle of the same qubit.
type qubitCell struct {
	owner Owner
	id    int
	refs  int
}

// retire issues the Deallocate command and invalidates the id. The id is
// invalidated even when issuing fails so the command is never sent twice.
func (c *qubitCell) retire() error {
	ref := WeakQubitRef{Engine: c.owner, ID: c.id}
	err := c.owner.DeallocateRef(ref)
	c.id = -1
	c.refs = 0
	return err
}

// Qubit is a reference-counted handle on an allocated qubit. The last Release
// of all handles deallocates it; Retire deallocates it at once.
type Qubit struct {
	cell     *qubitCell
	released bool
}

// NewQubit wraps a freshly allocated id. Only the allocating engine should
// call it.
func NewQubit(owner Owner, id int) *Qubit {
	return &Qubit{cell: &qubitCell{owner: owner, id: id, refs: 1}}
}

// ID returns the qubit id, or -1 once the qubit has been deallocated.
func (q *Qubit) ID() int { return q.cell.id }

// Engine returns the owning engine.
func (q *Qubit) Engine() Owner { return q.cell.owner }

// Retired reports whether the qubit has been deallocated.
func (q *Qubit) Retired() bool { return q.cell.id < 0 }

// Ref returns a weak reference for building commands.
func (q *Qubit) Ref() (WeakQubitRef, error) {
	if q.Retired() {
		return WeakQubitRef{}, qerr.InvalidState("qubit already deallocated")
	}
	if q.released {
		return WeakQubitRef{}, qerr.InvalidState("use of released handle for qubit %d", q.cell.id)
	}
	return WeakQubitRef{Engine: q.cell.owner, ID: q.cell.id}, nil
}

// Share returns a second handle on the same qubit.
func (q *Qubit) Share() (*Qubit, error) {
	if _, err := q.Ref(); err != nil {
		return nil, err
	}
	q.cell.refs++
	return &Qubit{cell: q.cell}, nil
}

// Release drops this handle. Releasing the last handle deallocates the qubit.
// Releasing twice, or after Retire, does nothing.
func (q *Qubit) Release() error {
	if q.released {
		return nil
	}
	q.released = true
	if q.Retired() {
		return nil
	}
	q.cell.refs--
	if q.cell.refs > 0 {
		return nil
	}
	return q.cell.retire()
}

// Retire deallocates the qubit regardless of other handles. It also works on
// a released handle as long as the qubit is still live; the allocating engine
// relies on that when it shuts down.
func (q *Qubit) Retire() error {
	if q.Retired() {
		return qerr.InvalidState("qubit already deallocated")
	}
	return q.cell.retire()
}

// Measured flushes the owner and returns the last measurement outcome.
func (q *Qubit) Measured() (bool, error) {
	ref, err := q.Ref()
	if err != nil {
		return false, err
	}
	if err := q.cell.owner.Flush(); err != nil {
		return false, err
	}
	return q.cell.owner.MeasurementResult(ref)
}

func (q *Qubit) String() string { return fmt.Sprintf("Qubit[%d]", q.cell.id) }

// Qureg is an ordered register of qubits, least significant first.
type Qureg []*Qubit

// Refs returns weak refs for every qubit in order.
func (r Qureg) Refs() ([]WeakQubitRef, error) {
	refs := make([]WeakQubitRef, len(r))
	for i, q := range r {
		ref, err := q.Ref()
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	return refs, nil
}

// IDs returns the current ids (-1 for retired qubits).
func (r Qureg) IDs() []int {
	ids := make([]int, len(r))
	for i, q := range r {
		ids[i] = q.ID()
	}
	return ids
}

// Release releases every handle and returns the first error.
func (r Qureg) Release() error {
	var first error
	for _, q := range r {
		if err := q.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r Qureg) String() string {
	parts := make([]string, len(r))
	for i, id := range r.IDs() {
		parts[i] = fmt.Sprint(id)
	}
	return "Qureg[" + strings.Join(parts, ",") + "]"
}
