// Package cengines holds the engine chain: the Engine contract every stage
// satisfies, the MainEngine that owns qubit ids and feeds one or more chains,
// and the forwarding stages (mapper, buffer, replacer, modifiers).
package cengines

import (
	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// Engine is one stage of a chain. Stages embed BasicEngine, which links them
// into a chain and forwards by default.
type Engine interface {
	// Receive processes cmds in order and, unless the stage is terminal,
	// forwards the (possibly rewritten) commands in the same order.
	Receive(cmds []*ops.Command) error
	// IsAvailable reports whether the chain from this stage on accepts cmd.
	IsAvailable(cmd *ops.Command) bool

	base() *BasicEngine
}

// BasicEngine links a stage into a chain. Its zero value is ready to embed.
type BasicEngine struct {
	main   *MainEngine
	chain  *Chain
	next   Engine
	linked bool
}

func (b *BasicEngine) base() *BasicEngine { return b }

// Next returns the following stage, nil for the terminal one.
func (b *BasicEngine) Next() Engine { return b.next }

// IsLastEngine reports whether this stage terminates its chain.
func (b *BasicEngine) IsLastEngine() bool { return b.next == nil }

// MainEngine returns the engine the chain is attached to (nil before).
func (b *BasicEngine) MainEngine() *MainEngine { return b.main }

// Chain returns the chain this stage belongs to (nil before attachment).
func (b *BasicEngine) Chain() *Chain { return b.chain }

// Send forwards cmds to the next stage. Terminal stages drop them.
func (b *BasicEngine) Send(cmds []*ops.Command) error {
	if b.next == nil || len(cmds) == 0 {
		return nil
	}
	return b.next.Receive(cmds)
}

// Receive forwards cmds unchanged.
func (b *BasicEngine) Receive(cmds []*ops.Command) error { return b.Send(cmds) }

// IsAvailable delegates downstream. A stage with nothing behind it accepts
// every command.
func (b *BasicEngine) IsAvailable(cmd *ops.Command) bool {
	if b.next == nil {
		return true
	}
	return b.next.IsAvailable(cmd)
}

// Chain is an ordered run of stages ending in a terminal engine.
type Chain struct {
	name    string
	engines []Engine
	mapper  *Mapper
}

func newChain(main *MainEngine, name string, backend Engine, engines []Engine) (*Chain, error) {
	if backend == nil {
		return nil, qerr.InvalidArgument("chain %q has no backend", name)
	}
	all := append(append([]Engine(nil), engines...), backend)
	c := &Chain{name: name, engines: all}
	for _, e := range all {
		if e == nil {
			return nil, qerr.InvalidArgument("chain %q contains a nil engine", name)
		}
		if e.base().linked {
			return nil, qerr.InvalidArgument("engine %T is already part of a chain", e)
		}
		if m, ok := e.(*Mapper); ok {
			if c.mapper != nil {
				return nil, qerr.InvalidArgument("chain %q has more than one mapper", name)
			}
			c.mapper = m
		}
	}
	for i, e := range all {
		b := e.base()
		b.main, b.chain, b.linked = main, c, true
		if i+1 < len(all) {
			b.next = all[i+1]
		}
	}
	return c, nil
}

func (c *Chain) Name() string { return c.name }

// Head is the first stage commands are delivered to.
func (c *Chain) Head() Engine { return c.engines[0] }

// Backend is the terminal stage.
func (c *Chain) Backend() Engine { return c.engines[len(c.engines)-1] }

// Mapper returns the chain's mapper, nil when ids are not remapped.
func (c *Chain) Mapper() *Mapper { return c.mapper }

func (c *Chain) Engines() []Engine { return append([]Engine(nil), c.engines...) }
