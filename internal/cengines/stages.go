package cengines

import (
	"fmt"
	"strings"

	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// CommandModifier rewrites every Command through fn before forwarding it.
type CommandModifier struct {
	BasicEngine
	fn func(*ops.Command) (*ops.Command, error)
}

func NewCommandModifier(fn func(*ops.Command) (*ops.Command, error)) *CommandModifier {
	return &CommandModifier{fn: fn}
}

func (e *CommandModifier) Receive(cmds []*ops.Command) error {
	out := make([]*ops.Command, 0, len(cmds))
	for _, cmd := range cmds {
		next, err := e.fn(cmd)
		if err != nil {
			return err
		}
		out = append(out, next)
	}
	return e.Send(out)
}

// Buffer holds Commands back and forwards them in order once size are
// pending, or when a Flush arrives.
type Buffer struct {
	BasicEngine
	size    int
	pending []*ops.Command
}

func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{size: size}
}

// Pending is the number of Commands not yet forwarded.
func (e *Buffer) Pending() int { return len(e.pending) }

func (e *Buffer) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		e.pending = append(e.pending, cmd)
		_, flush := cmd.Gate().(ops.FlushGate)
		if flush || len(e.pending) >= e.size {
			if err := e.drain(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Buffer) drain() error {
	out := e.pending
	e.pending = nil
	return e.Send(out)
}

// DummyEngine accepts everything and optionally records what it saw.
type DummyEngine struct {
	BasicEngine
	save     bool
	received []*ops.Command
}

func NewDummyEngine(save bool) *DummyEngine { return &DummyEngine{save: save} }

func (e *DummyEngine) IsAvailable(*ops.Command) bool { return true }

func (e *DummyEngine) Receive(cmds []*ops.Command) error {
	if e.save {
		e.received = append(e.received, cmds...)
	}
	return e.Send(cmds)
}

// ReceivedCommands returns the recorded Commands in arrival order.
func (e *DummyEngine) ReceivedCommands() []*ops.Command {
	return append([]*ops.Command(nil), e.received...)
}

// GateFilter restricts a chain to a set of gate classes. A class is the gate
// name without its parameter, prefixed by C (one control) or C<n>, so Rz(0.2)
// is "Rz" and a Toffoli is "C2X". Allocate, Deallocate, Measure and Flush
// always pass.
type GateFilter struct {
	BasicEngine
	allowed map[string]bool
}

func NewGateFilter(classes ...string) *GateFilter {
	f := &GateFilter{allowed: make(map[string]bool, len(classes))}
	for _, c := range classes {
		f.allowed[c] = true
	}
	return f
}

// GateClass names cmd the way a GateFilter matches it.
func GateClass(cmd *ops.Command) string {
	name := cmd.Gate().String()
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch n := cmd.ControlCount(); {
	case n == 1:
		return "C" + name
	case n > 1:
		return fmt.Sprintf("C%d%s", n, name)
	}
	return name
}

// Allows reports whether cmd's class is in the set.
func (f *GateFilter) Allows(cmd *ops.Command) bool {
	if _, ok := cmd.Gate().(ops.MeasureGate); ok || ops.IsBookkeeping(cmd.Gate()) {
		return true
	}
	return f.allowed[GateClass(cmd)]
}

func (f *GateFilter) IsAvailable(cmd *ops.Command) bool {
	return f.Allows(cmd) && f.BasicEngine.IsAvailable(cmd)
}

func (f *GateFilter) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if !f.Allows(cmd) {
			return qerr.InvalidArgument("gate class %s is not allowed", GateClass(cmd))
		}
	}
	return f.Send(cmds)
}
