package cengines

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// picky is a terminal engine that only accepts what accept allows.
type picky struct {
	BasicEngine
	accept func(*ops.Command) bool
	got    []*ops.Command
}

func (p *picky) IsAvailable(cmd *ops.Command) bool { return p.accept(cmd) }

func (p *picky) Receive(cmds []*ops.Command) error {
	p.got = append(p.got, cmds...)
	return nil
}

func refusing(g ops.Gate) *picky {
	return &picky{accept: func(cmd *ops.Command) bool { return cmd.Gate() != g }}
}

func strs(cmds []*ops.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

func TestFanOutSendsIdenticalSequences(t *testing.T) {
	a, b := NewDummyEngine(true), NewDummyEngine(true)
	eng, err := NewMainEngine(zaptest.NewLogger(t), a)
	require.NoError(t, err)
	require.NoError(t, eng.AddChain("second", b))

	reg, err := eng.AllocateQureg(2)
	require.NoError(t, err)
	require.NoError(t, ops.ApplyControlled(ops.X, reg[:1], reg[1:]))
	require.NoError(t, ops.Apply(ops.Measure, reg))

	want := []string{
		"Allocate | ( Qubit[0] )",
		"Allocate | ( Qubit[1] )",
		"CX | ( Qubit[0], Qubit[1] )",
		"Measure | ( Qubit[0] )",
		"Measure | ( Qubit[1] )",
	}
	assert.Equal(t, want, strs(a.ReceivedCommands()))
	assert.Equal(t, want, strs(b.ReceivedCommands()))
}

func TestAvailabilityIsCheckedBeforeForwarding(t *testing.T) {
	ok := NewDummyEngine(true)
	strict := refusing(ops.H)
	eng, err := NewMainEngine(nil, ok)
	require.NoError(t, err)
	require.NoError(t, eng.AddChain("strict", strict))

	q, err := eng.Allocate()
	require.NoError(t, err)
	err = ops.Apply(ops.H, ops.Qureg{q})
	require.Error(t, err)
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	assert.Contains(t, err.Error(), `"strict"`)

	assert.Len(t, ok.ReceivedCommands(), 1, "the permissive chain must not see the refused command")
	assert.Len(t, strict.got, 1)
}

func TestChainsAreFixedOnceQubitsExist(t *testing.T) {
	eng, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)
	_, err = eng.Allocate()
	require.NoError(t, err)

	err = eng.AddChain("late", NewDummyEngine(false))
	assert.True(t, errors.Is(err, qerr.ErrInvalidState))
}

func TestEngineBelongsToOneChain(t *testing.T) {
	shared := NewDummyEngine(false)
	eng, err := NewMainEngine(nil, shared)
	require.NoError(t, err)

	err = eng.AddChain("again", shared)
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	err = eng.AddChain(DefaultChain, NewDummyEngine(false))
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))

	_, err = NewMainEngine(nil, nil)
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
}

func TestForeignAndRetiredQubitsAreRejected(t *testing.T) {
	one, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)
	two, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)

	q, err := one.Allocate()
	require.NoError(t, err)
	ref, err := q.Ref()
	require.NoError(t, err)
	cmd, err := ops.NewCommand(ops.X, [][]ops.WeakQubitRef{{ref}}, nil)
	require.NoError(t, err)

	err = two.Receive([]*ops.Command{cmd})
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))

	require.NoError(t, one.Deallocate(q))
	err = one.Receive([]*ops.Command{cmd})
	assert.True(t, errors.Is(err, qerr.ErrInvalidState), "stale ref: %v", err)
	err = ops.Apply(ops.X, ops.Qureg{q})
	assert.True(t, errors.Is(err, qerr.ErrInvalidState))

	err = one.DeallocateRef(ref)
	assert.True(t, errors.Is(err, qerr.ErrInvalidState))
}

func TestBookkeepingCannotBeInjected(t *testing.T) {
	eng, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)
	q, err := eng.Allocate()
	require.NoError(t, err)
	ref, _ := q.Ref()
	cmd, err := ops.NewCommand(ops.Deallocate, [][]ops.WeakQubitRef{{ref}}, nil)
	require.NoError(t, err)

	err = eng.Receive([]*ops.Command{cmd})
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	assert.Equal(t, []int{0}, eng.LiveIDs())
}

func TestIDsAreNeverReused(t *testing.T) {
	eng, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)

	a, err := eng.Allocate()
	require.NoError(t, err)
	require.NoError(t, a.Release())
	b, err := eng.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 1, b.ID())
	assert.Equal(t, -1, a.ID())
	assert.Equal(t, []int{1}, eng.LiveIDs())
}

func TestFlushDrainsBuffers(t *testing.T) {
	sink := NewDummyEngine(true)
	buf := NewBuffer(10)
	eng, err := NewMainEngine(nil, sink, buf)
	require.NoError(t, err)

	q, err := eng.Allocate()
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.X, ops.Qureg{q}))
	assert.Empty(t, sink.ReceivedCommands())
	assert.Equal(t, 2, buf.Pending())

	require.NoError(t, eng.Flush())
	got := sink.ReceivedCommands()
	require.Len(t, got, 3)
	assert.Equal(t, ops.Flush, got[2].Gate())
	assert.Equal(t, -1, got[2].Targets()[0].ID)
	assert.Zero(t, buf.Pending())
}

func TestBufferForwardsWhenFull(t *testing.T) {
	sink := NewDummyEngine(true)
	eng, err := NewMainEngine(nil, sink, NewBuffer(2))
	require.NoError(t, err)

	_, err = eng.AllocateQureg(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Allocate | ( Qubit[0] )", "Allocate | ( Qubit[1] )"}, strs(sink.ReceivedCommands()))
}

func TestMeasurementResults(t *testing.T) {
	eng, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)
	q, err := eng.Allocate()
	require.NoError(t, err)
	ref, _ := q.Ref()

	_, err = eng.MeasurementResult(ref)
	assert.True(t, errors.Is(err, qerr.ErrLookup))

	require.NoError(t, eng.SetMeasurementResult(ref, true))
	v, err := q.Measured()
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, q.Retire())
	require.NoError(t, eng.SetMeasurementResult(ref, false), "late outcome of a released qubit is dropped")
	_, err = eng.MeasurementResult(ref)
	assert.True(t, errors.Is(err, qerr.ErrLookup))

	err = eng.SetMeasurementResult(ops.WeakQubitRef{Engine: eng, ID: 99}, true)
	assert.True(t, errors.Is(err, qerr.ErrLookup))
}

// reporter answers every Measure with true, like a backend would.
type reporter struct {
	BasicEngine
	measured []int
}

func (r *reporter) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if _, ok := cmd.Gate().(ops.MeasureGate); !ok {
			continue
		}
		ref := cmd.Targets()[0]
		if id, ok := ops.LogicalID(cmd.Tags()); ok {
			ref.ID = id
		}
		r.measured = append(r.measured, ref.ID)
		if err := r.MainEngine().SetMeasurementResult(ref, true); err != nil {
			return err
		}
	}
	return nil
}

func TestBufferedMeasureOfReleasedQubit(t *testing.T) {
	r := &reporter{}
	eng, err := NewMainEngine(nil, r, NewBuffer(8))
	require.NoError(t, err)

	q, err := eng.Allocate()
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.Measure, ops.Qureg{q}))
	require.NoError(t, q.Release())
	require.NoError(t, eng.Flush())
	assert.Equal(t, []int{0}, r.measured)

	reg, err := eng.AllocateQureg(2)
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.Measure, reg))
	require.NoError(t, eng.Close())
	assert.Equal(t, []int{0, 1, 2}, r.measured)
	assert.Empty(t, eng.LiveIDs())
}

func TestMapperRefusalReachesNoChain(t *testing.T) {
	first := NewDummyEngine(true)
	mapped := NewDummyEngine(true)
	mapper := NewMapper()
	eng, err := NewMainEngine(nil, first)
	require.NoError(t, err)
	require.NoError(t, eng.AddChain("mapped", mapped, mapper))

	_, err = eng.Allocate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, qerr.ErrLookup))
	assert.Contains(t, err.Error(), `"mapped"`)
	assert.Empty(t, first.ReceivedCommands())
	assert.Empty(t, mapped.ReceivedCommands())
	assert.Empty(t, eng.LiveIDs())

	// nothing was allocated, so the chain set is still open
	require.NoError(t, eng.AddChain("late", NewDummyEngine(false)))

	// id 0 is spent; the next allocation is 1
	require.NoError(t, mapper.SetQubitMapping(1, 0))
	q, err := eng.Allocate()
	require.NoError(t, err)
	assert.Equal(t, []string{"Allocate | ( Qubit[1] )"}, strs(first.ReceivedCommands()))
	assert.Equal(t, []string{"Allocate | ( Qubit[0] )"}, strs(mapped.ReceivedCommands()))

	require.NoError(t, ops.Apply(ops.X, ops.Qureg{q}))
	assert.Len(t, first.ReceivedCommands(), 2)
	assert.Len(t, mapped.ReceivedCommands(), 2)
}

func TestDerivedCollisionReachesNoChain(t *testing.T) {
	first := NewDummyEngine(true)
	mapped := NewDummyEngine(true)
	eng, err := NewMainEngine(nil, first)
	require.NoError(t, err)
	require.NoError(t, eng.AddChain("mapped", mapped, NewManualMapper(func(int) int { return 0 })))

	_, err = eng.Allocate()
	require.NoError(t, err)
	_, err = eng.Allocate()
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	assert.Len(t, first.ReceivedCommands(), 1)
	assert.Len(t, mapped.ReceivedCommands(), 1)
	assert.Equal(t, []int{0}, eng.LiveIDs())
}

func TestBufferedAllocationBeforeMapper(t *testing.T) {
	sink := NewDummyEngine(true)
	eng, err := NewMainEngine(nil, sink, NewBuffer(4), NewManualMapper(func(id int) int { return id + 1 }))
	require.NoError(t, err)

	q, err := eng.Allocate()
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.X, ops.Qureg{q}), "the allocation is still held by the buffer")
	assert.Empty(t, sink.ReceivedCommands())
	require.NoError(t, eng.Flush())
	assert.Equal(t, []string{
		"Allocate | ( Qubit[1] )",
		"X | ( Qubit[1] )",
		"Flush | ( Qubit[-1] )",
	}, strs(sink.ReceivedCommands()))
}

func TestCloseRetiresLiveQubits(t *testing.T) {
	sink := NewDummyEngine(true)
	eng, err := NewMainEngine(nil, sink)
	require.NoError(t, err)
	reg, err := eng.AllocateQureg(3)
	require.NoError(t, err)
	require.NoError(t, reg[1].Release())

	require.NoError(t, eng.Close())
	assert.Equal(t, []int{-1, -1, -1}, reg.IDs())
	assert.Equal(t, []string{
		"Allocate | ( Qubit[0] )",
		"Allocate | ( Qubit[1] )",
		"Allocate | ( Qubit[2] )",
		"Deallocate | ( Qubit[1] )",
		"Deallocate | ( Qubit[0] )",
		"Deallocate | ( Qubit[2] )",
		"Flush | ( Qubit[-1] )",
	}, strs(sink.ReceivedCommands()))
	assert.Empty(t, eng.LiveIDs())
}

func TestManualMapperTagsMeasurements(t *testing.T) {
	sink := NewDummyEngine(true)
	mapper := NewManualMapper(func(id int) int { return (id + 1) & 1 })
	eng, err := NewMainEngine(nil, sink, mapper)
	require.NoError(t, err)
	assert.Same(t, mapper, eng.Mapper(DefaultChain))

	reg, err := eng.AllocateQureg(2)
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.Swap, reg))
	require.Error(t, ops.ApplyControlled(ops.X, reg, reg[:1]))
	require.NoError(t, ops.Apply(ops.Measure, reg[:1]))
	require.NoError(t, eng.Flush())

	got := sink.ReceivedCommands()
	require.Len(t, got, 5)
	assert.Equal(t, "Allocate | ( Qubit[1] )", got[0].String())
	assert.Equal(t, "Allocate | ( Qubit[0] )", got[1].String())
	assert.Equal(t, "Swap | ( Qubit[1,0] )", got[2].String())

	meas := got[3]
	assert.Equal(t, 1, meas.Targets()[0].ID)
	id, ok := ops.LogicalID(meas.Tags())
	require.True(t, ok)
	assert.Equal(t, 0, id, "tag carries the logical id, not the physical one")
	assert.Equal(t, -1, got[4].Targets()[0].ID)

	assert.Equal(t, map[int]int{0: 1, 1: 0}, mapper.CurrentMapping())
	require.NoError(t, reg[0].Retire())
	assert.Equal(t, map[int]int{1: 0}, mapper.CurrentMapping())
}

func TestMapperRewritesControlsInOrder(t *testing.T) {
	sink := NewDummyEngine(true)
	mapper := NewMapper()
	require.NoError(t, mapper.SetMapping(map[int]int{0: 2, 1: 1, 2: 0}))
	eng, err := NewMainEngine(nil, sink, mapper)
	require.NoError(t, err)

	reg, err := eng.AllocateQureg(3)
	require.NoError(t, err)
	require.NoError(t, ops.ApplyControlled(ops.X, reg[:2], reg[2:]))

	cmd := sink.ReceivedCommands()[3]
	assert.Equal(t, "C2X | ( Qubit[1,2], Qubit[0] )", cmd.String())
}

func TestMapperTableRules(t *testing.T) {
	mapper := NewMapper()
	err := mapper.SetMapping(map[int]int{0: 1, 1: 1})
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	require.NoError(t, mapper.SetMapping(map[int]int{0: 1, 1: 0}))

	sink := NewDummyEngine(true)
	eng, err := NewMainEngine(nil, sink, mapper)
	require.NoError(t, err)
	_, err = eng.Allocate()
	require.NoError(t, err)

	err = mapper.SetQubitMapping(0, 3)
	assert.True(t, errors.Is(err, qerr.ErrInvalidState))
	err = mapper.SetMapping(map[int]int{0: 0, 1: 1})
	assert.True(t, errors.Is(err, qerr.ErrInvalidState))
	err = mapper.SetQubitMapping(1, 1)
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	require.NoError(t, mapper.SetQubitMapping(1, 5))
	require.NoError(t, mapper.SetQubitMapping(0, 1))

	_, err = eng.Allocate()
	require.NoError(t, err)
	_, err = eng.Allocate()
	assert.True(t, errors.Is(err, qerr.ErrLookup))
	assert.Len(t, sink.ReceivedCommands(), 2, "unmapped allocation is not forwarded")
	assert.Equal(t, []int{0, 1}, eng.LiveIDs())
}

func TestReplacerDecomposesRefusedCommands(t *testing.T) {
	backend := refusing(ops.Swap)
	eng, err := NewMainEngine(nil, backend, NewReplacer())
	require.NoError(t, err)

	reg, err := eng.AllocateQureg(2)
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.Swap, reg))
	require.NoError(t, ops.Apply(ops.X, reg))

	got := strs(backend.got[2:])
	assert.Equal(t, []string{
		"CX | ( Qubit[1], Qubit[0] )",
		"CX | ( Qubit[0], Qubit[1] )",
		"CX | ( Qubit[1], Qubit[0] )",
		"X | ( Qubit[0,1] )",
	}, got)
	for _, cmd := range backend.got[2:5] {
		assert.True(t, ops.HasTag(cmd.Tags(), ops.DecomposedTag{Rule: "swap2cnot"}))
	}

	strict := refusing(ops.H)
	eng, err = NewMainEngine(nil, strict, NewReplacer())
	require.NoError(t, err)
	q, err := eng.Allocate()
	require.NoError(t, err)
	err = ops.Apply(ops.H, ops.Qureg{q})
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
}

func TestReplacerSplitsWideX(t *testing.T) {
	backend := &picky{accept: func(cmd *ops.Command) bool {
		_, isX := cmd.Gate().(ops.XGate)
		return !isX || len(cmd.Targets()) == 1
	}}
	eng, err := NewMainEngine(nil, backend, NewReplacer())
	require.NoError(t, err)
	reg, err := eng.AllocateQureg(3)
	require.NoError(t, err)

	require.NoError(t, ops.ApplyControlled(ops.X, reg[:1], reg[1:]))
	assert.Equal(t, []string{
		"CX | ( Qubit[0], Qubit[1] )",
		"CX | ( Qubit[0], Qubit[2] )",
	}, strs(backend.got[3:]))
}

func TestCommandModifier(t *testing.T) {
	sink := NewDummyEngine(true)
	mod := NewCommandModifier(func(cmd *ops.Command) (*ops.Command, error) {
		return cmd.WithTags(ops.DecomposedTag{Rule: "seen"}), nil
	})
	eng, err := NewMainEngine(nil, sink, mod)
	require.NoError(t, err)
	_, err = eng.Allocate()
	require.NoError(t, err)

	got := sink.ReceivedCommands()
	require.Len(t, got, 1)
	assert.True(t, ops.HasTag(got[0].Tags(), ops.DecomposedTag{Rule: "seen"}))
	assert.Same(t, eng, mod.MainEngine())
	assert.False(t, mod.IsLastEngine())
	assert.True(t, sink.IsLastEngine())
	assert.Equal(t, DefaultChain, sink.Chain().Name())
}

func TestGateFilterRestrictsGateSet(t *testing.T) {
	sink := NewDummyEngine(true)
	eng, err := NewMainEngine(nil, sink, NewReplacer(), NewGateFilter("Rz", "H", "CX"))
	require.NoError(t, err)
	reg, err := eng.AllocateQureg(2)
	require.NoError(t, err)

	require.NoError(t, ops.ApplyControlled(ops.X, reg[:1], reg[1:]))
	require.NoError(t, ops.Apply(ops.H, reg[:1]))
	require.NoError(t, ops.Apply(ops.Rz{Angle: 0.2}, reg[:1]))
	require.NoError(t, ops.Apply(ops.Measure, reg[:1]))
	require.NoError(t, ops.Apply(ops.Swap, reg), "swap decomposes into allowed CNOTs")

	err = ops.Apply(ops.Rx{Angle: 0.1}, reg[:1])
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	err = ops.Apply(ops.X, reg[:1])
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	require.NoError(t, eng.Flush())

	var classes []string
	for _, cmd := range sink.ReceivedCommands()[2:] {
		classes = append(classes, GateClass(cmd))
	}
	assert.Equal(t, []string{"CX", "H", "Rz", "Measure", "CX", "CX", "CX", "Flush"}, classes)
}

func TestGateClass(t *testing.T) {
	eng, err := NewMainEngine(nil, NewDummyEngine(false))
	require.NoError(t, err)
	reg, err := eng.AllocateQureg(3)
	require.NoError(t, err)
	refs := make([]ops.WeakQubitRef, 3)
	for i, q := range reg {
		refs[i], _ = q.Ref()
	}

	for _, tc := range []struct {
		gate  ops.Gate
		ctrls []ops.WeakQubitRef
		want  string
	}{
		{ops.X, nil, "X"},
		{ops.X, refs[1:2], "CX"},
		{ops.X, refs[1:], "C2X"},
		{ops.Ry{Angle: 1.5}, nil, "Ry"},
		{ops.AddConstant(3), nil, "AddConstant"},
	} {
		cmd, err := ops.NewCommand(tc.gate, [][]ops.WeakQubitRef{refs[:1]}, tc.ctrls)
		require.NoError(t, err)
		assert.Equal(t, tc.want, GateClass(cmd))
	}
}
