package backends

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qpipe/internal/cengines"
	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

type chainSetup struct {
	name    string
	engines func() []cengines.Engine
}

var chainSetups = []chainSetup{
	{"plain", func() []cengines.Engine { return nil }},
	{"mapped", func() []cengines.Engine {
		return []cengines.Engine{cengines.NewManualMapper(func(id int) int { return id + 1 })}
	}},
}

func newClassical(t *testing.T, s chainSetup, opts ...ClassicalOption) (*cengines.MainEngine, *ClassicalRegisterBackend) {
	t.Helper()
	sim := NewClassicalRegisterBackend(opts...)
	eng, err := cengines.NewMainEngine(nil, sim, s.engines()...)
	require.NoError(t, err)
	return eng, sim
}

func refsOf(t *testing.T, reg ops.Qureg) []ops.WeakQubitRef {
	t.Helper()
	refs, err := reg.Refs()
	require.NoError(t, err)
	return refs
}

func forEachSetup(t *testing.T, fn func(t *testing.T, s chainSetup)) {
	for _, s := range chainSetups {
		t.Run(s.name, func(t *testing.T) { fn(t, s) })
	}
}

func TestReadWriteRegisters(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		eng, sim := newClassical(t, s)
		a, err := eng.AllocateQureg(32)
		require.NoError(t, err)
		b, err := eng.AllocateQureg(32)
		require.NoError(t, err)
		ra, rb := refsOf(t, a), refsOf(t, b)

		v, err := sim.ReadRegister(ra)
		require.NoError(t, err)
		assert.Zero(t, v)

		require.NoError(t, sim.WriteRegister(ra, 123))
		require.NoError(t, sim.WriteRegister(rb, 456))
		v, _ = sim.ReadRegister(ra)
		assert.EqualValues(t, 123, v)
		v, _ = sim.ReadRegister(rb)
		assert.EqualValues(t, 456, v)

		bit, err := sim.ReadBit(ra[0])
		require.NoError(t, err)
		assert.Equal(t, 1, bit)
		bit, _ = sim.ReadBit(rb[0])
		assert.Equal(t, 0, bit)

		require.NoError(t, sim.WriteBit(rb[0], 1))
		v, _ = sim.ReadRegister(rb)
		assert.EqualValues(t, 457, v)

		err = sim.WriteBit(rb[0], 2)
		assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	})
}

func TestTriangleIncrement(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		for _, start := range []int64{0, 37} {
			eng, sim := newClassical(t, s)
			a, err := eng.AllocateQureg(6)
			require.NoError(t, err)
			ra := refsOf(t, a)
			require.NoError(t, sim.WriteRegister(ra, start))

			seen := make(map[int64]bool)
			for step := int64(0); step < 1<<6; step++ {
				v, err := sim.ReadRegister(ra)
				require.NoError(t, err)
				require.Equal(t, (start+step)%64, v)
				require.False(t, seen[v], "value %d visited twice", v)
				seen[v] = true
				for i := 5; i >= 0; i-- {
					require.NoError(t, ops.ApplyControlled(ops.X, a[:i], a[i:i+1]))
				}
			}
			assert.Len(t, seen, 64)
			v, err := sim.ReadRegister(ra)
			require.NoError(t, err)
			assert.Equal(t, start, v, "a full cycle returns to the start")
		}
	})
}

func TestBitRepositioningAfterDeallocation(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		eng, sim := newClassical(t, s)
		a, _ := eng.AllocateQureg(4)
		b, _ := eng.AllocateQureg(5)
		c, err := eng.AllocateQureg(6)
		require.NoError(t, err)
		ra, rb, rc := refsOf(t, a), refsOf(t, b), refsOf(t, c)

		require.NoError(t, sim.WriteRegister(ra, 9))
		require.NoError(t, sim.WriteRegister(rb, 17))
		require.NoError(t, sim.WriteRegister(rc, 33))

		for _, q := range b {
			require.NoError(t, eng.Deallocate(q))
		}
		assert.Equal(t, -1, b[0].ID())

		v, err := sim.ReadRegister(ra)
		require.NoError(t, err)
		assert.EqualValues(t, 9, v)
		v, err = sim.ReadRegister(rc)
		require.NoError(t, err)
		assert.EqualValues(t, 33, v)

		_, err = sim.ReadBit(rb[0])
		assert.True(t, errors.Is(err, qerr.ErrLookup))
	})
}

func TestArithmeticWraps(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		eng, sim := newClassical(t, s, WithOverflowPolicy(OverflowWrap))
		a, _ := eng.AllocateQureg(4)
		b, err := eng.AllocateQureg(5)
		require.NoError(t, err)
		ra, rb := refsOf(t, a), refsOf(t, b)
		require.NoError(t, sim.WriteRegister(ra, 9))
		require.NoError(t, sim.WriteRegister(rb, 17))

		read := func() (int64, int64) {
			x, err := sim.ReadRegister(ra)
			require.NoError(t, err)
			y, err := sim.ReadRegister(rb)
			require.NoError(t, err)
			return x, y
		}
		check := func(wantA, wantB int64) {
			t.Helper()
			x, y := read()
			assert.Equal(t, wantA, x)
			assert.Equal(t, wantB, y)
		}

		require.NoError(t, ops.Apply(ops.AddConstant(2), a))
		check(11, 17)
		require.NoError(t, ops.Apply(ops.AddConstant(3), b))
		check(11, 20)
		require.NoError(t, ops.Apply(ops.AddConstant(32+5), b))
		check(11, 25)
		require.NoError(t, ops.Apply(ops.SubtractRegister(), a, b))
		check(11, 14)
		require.NoError(t, ops.Apply(ops.SubtractRegister(), a, b))
		require.NoError(t, ops.Apply(ops.SubtractRegister(), a, b))
		check(11, 24)

		require.NoError(t, ops.Apply(ops.Measure, a, b))
		for i, q := range a {
			v, err := q.Measured()
			require.NoError(t, err)
			assert.Equal(t, (11>>i)&1 == 1, v, "a[%d]", i)
		}
		for i, q := range b {
			v, err := q.Measured()
			require.NoError(t, err)
			assert.Equal(t, (24>>i)&1 == 1, v, "b[%d]", i)
		}
	})
}

func TestArithmeticRejectsOverflowAtomically(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		eng, sim := newClassical(t, s)
		assert.Equal(t, OverflowReject, sim.Policy())
		a, _ := eng.AllocateQureg(4)
		b, err := eng.AllocateQureg(3)
		require.NoError(t, err)
		ra, rb := refsOf(t, a), refsOf(t, b)
		require.NoError(t, sim.WriteRegister(ra, 1))
		require.NoError(t, sim.WriteRegister(rb, 7))

		err = ops.Apply(ops.AddRegister(), a, b)
		assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
		err = ops.Apply(ops.SubtractConstant(2), a)
		assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))

		x, _ := sim.ReadRegister(ra)
		y, _ := sim.ReadRegister(rb)
		assert.EqualValues(t, 1, x)
		assert.EqualValues(t, 7, y)
	})
}

func TestControlledArithmetic(t *testing.T) {
	eng, sim := newClassical(t, chainSetups[0])
	ctrl, _ := eng.Allocate()
	a, err := eng.AllocateQureg(4)
	require.NoError(t, err)
	ra := refsOf(t, a)

	require.NoError(t, ops.ApplyControlled(ops.AddConstant(3), ops.Qureg{ctrl}, a))
	v, _ := sim.ReadRegister(ra)
	assert.Zero(t, v, "control is 0, so nothing happens")

	require.NoError(t, ops.Apply(ops.X, ops.Qureg{ctrl}))
	require.NoError(t, ops.ApplyControlled(ops.AddConstant(3), ops.Qureg{ctrl}, a))
	v, _ = sim.ReadRegister(ra)
	assert.EqualValues(t, 3, v)
}

func TestWriteRegisterOutOfRange(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		eng, sim := newClassical(t, s)
		a, err := eng.AllocateQureg(3)
		require.NoError(t, err)
		ra := refsOf(t, a)
		require.NoError(t, sim.WriteRegister(ra, 5))

		for _, v := range []int64{-2, 8} {
			err := sim.WriteRegister(ra, v)
			assert.True(t, errors.Is(err, qerr.ErrInvalidArgument), "value %d", v)
		}
		v, _ := sim.ReadRegister(ra)
		assert.EqualValues(t, 5, v)
	})
}

func TestRegisterWidthLimit(t *testing.T) {
	eng, sim := newClassical(t, chainSetups[0])
	reg, err := eng.AllocateQureg(MaxRegisterWidth + 1)
	require.NoError(t, err)

	_, err = sim.ReadRegister(refsOf(t, reg))
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	_, err = sim.ReadRegister(refsOf(t, reg[:MaxRegisterWidth]))
	assert.NoError(t, err)
}

func TestUnsupportedGatesAreRefused(t *testing.T) {
	forEachSetup(t, func(t *testing.T, s chainSetup) {
		eng, _ := newClassical(t, s)
		reg, err := eng.AllocateQureg(2)
		require.NoError(t, err)

		err = ops.Apply(ops.X, reg)
		assert.True(t, errors.Is(err, qerr.ErrInvalidArgument), "X on two qubits")
		err = ops.Apply(ops.Y, reg[:1])
		assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
		err = ops.Apply(ops.H, reg[:1])
		assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
	})
}

func TestClassicalForwardsWhenNotLast(t *testing.T) {
	sim := NewClassicalRegisterBackend()
	sink := cengines.NewDummyEngine(true)
	eng, err := cengines.NewMainEngine(nil, sink, sim)
	require.NoError(t, err)

	q, err := eng.Allocate()
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.X, ops.Qureg{q}))
	require.NoError(t, q.Release())
	assert.Len(t, sink.ReceivedCommands(), 3)
}

func TestUnmappedReadFails(t *testing.T) {
	sim := NewClassicalRegisterBackend()
	_, err := cengines.NewMainEngine(nil, sim, cengines.NewMapper())
	require.NoError(t, err)

	_, err = sim.ReadBit(ops.WeakQubitRef{ID: 1})
	assert.True(t, errors.Is(err, qerr.ErrLookup))
}

func TestBufferedMeasureOfReleasedQubit(t *testing.T) {
	sim := NewClassicalRegisterBackend()
	eng, err := cengines.NewMainEngine(nil, sim, cengines.NewBuffer(8))
	require.NoError(t, err)

	q, err := eng.Allocate()
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.Measure, ops.Qureg{q}))
	require.NoError(t, q.Release())
	require.NoError(t, eng.Flush())

	reg, err := eng.AllocateQureg(2)
	require.NoError(t, err)
	require.NoError(t, ops.Apply(ops.Measure, reg))
	require.NoError(t, eng.Close())
	assert.Empty(t, eng.LiveIDs())
}

func TestMapperRefusalLeavesSiblingUntouched(t *testing.T) {
	simA := NewClassicalRegisterBackend()
	simB := NewClassicalRegisterBackend()
	eng, err := cengines.NewNamedMainEngine(nil, "a", simA)
	require.NoError(t, err)
	require.NoError(t, eng.AddChain("b", simB, cengines.NewMapper()))

	_, err = eng.Allocate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, qerr.ErrLookup))
	assert.Empty(t, eng.LiveIDs())

	_, err = simA.ReadBit(ops.WeakQubitRef{ID: 0})
	assert.True(t, errors.Is(err, qerr.ErrLookup), "chain a never saw the allocation")
}

// reentrant feeds what it receives straight back into the backend.
type reentrant struct {
	cengines.BasicEngine
	sim *ClassicalRegisterBackend
	err error
}

func (r *reentrant) Receive(cmds []*ops.Command) error {
	r.err = r.sim.Receive(cmds)
	return nil
}

func TestReentrantReceiveIsRejected(t *testing.T) {
	sim := NewClassicalRegisterBackend()
	hook := &reentrant{sim: sim}
	eng, err := cengines.NewMainEngine(nil, hook, sim)
	require.NoError(t, err)

	_, err = eng.Allocate()
	require.NoError(t, err)
	assert.True(t, errors.Is(hook.err, qerr.ErrRuntimeInconsistency))
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("Wrap")
	require.NoError(t, err)
	assert.Equal(t, OverflowWrap, p)
	p, err = ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowReject, p)
	_, err = ParseOverflowPolicy("saturate")
	assert.True(t, errors.Is(err, qerr.ErrInvalidArgument))
}
