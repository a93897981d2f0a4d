package cengines

import (
	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

const maxDecompositionDepth = 16

// DecompositionRule turns a Command the rest of the chain refuses into an
// equivalent sequence.
type DecompositionRule struct {
	Name      string
	Match     func(cmd *ops.Command) bool
	Decompose func(cmd *ops.Command) ([]*ops.Command, error)
}

// Replacer forwards Commands the downstream stages accept and decomposes the
// others with the first matching rule, recursively. Each produced Command
// carries a DecomposedTag naming the rule.
type Replacer struct {
	BasicEngine
	rules []DecompositionRule
}

// NewReplacer uses DefaultRules when no rules are given.
func NewReplacer(rules ...DecompositionRule) *Replacer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Replacer{rules: rules}
}

func (r *Replacer) IsAvailable(cmd *ops.Command) bool {
	_, err := r.replace(cmd, 0)
	return err == nil
}

func (r *Replacer) Receive(cmds []*ops.Command) error {
	var out []*ops.Command
	for _, cmd := range cmds {
		seq, err := r.replace(cmd, 0)
		if err != nil {
			return err
		}
		out = append(out, seq...)
	}
	return r.Send(out)
}

func (r *Replacer) downstreamAccepts(cmd *ops.Command) bool {
	return r.BasicEngine.IsAvailable(cmd)
}

func (r *Replacer) replace(cmd *ops.Command, depth int) ([]*ops.Command, error) {
	if r.downstreamAccepts(cmd) {
		return []*ops.Command{cmd}, nil
	}
	if depth >= maxDecompositionDepth {
		return nil, qerr.InvalidArgument("decomposition of %s does not terminate", cmd)
	}
	for _, rule := range r.rules {
		if !rule.Match(cmd) {
			continue
		}
		subs, err := rule.Decompose(cmd)
		if err != nil {
			return nil, err
		}
		var out []*ops.Command
		for _, sub := range subs {
			seq, err := r.replace(sub.WithTags(ops.DecomposedTag{Rule: rule.Name}), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, seq...)
		}
		return out, nil
	}
	return nil, qerr.InvalidArgument("no decomposition rule for %s", cmd)
}

// DefaultRules splits Swap into three CNOTs and an X on several qubits into
// one X per qubit.
func DefaultRules() []DecompositionRule {
	return []DecompositionRule{SwapToCNOT(), SplitX()}
}

// SwapToCNOT decomposes a (controlled) Swap of a and b into
// CNOT(b, a), C(ctrls+a) X(b), CNOT(b, a).
func SwapToCNOT() DecompositionRule {
	return DecompositionRule{
		Name: "swap2cnot",
		Match: func(cmd *ops.Command) bool {
			_, ok := cmd.Gate().(ops.SwapGate)
			return ok && len(cmd.Targets()) == 2
		},
		Decompose: func(cmd *ops.Command) ([]*ops.Command, error) {
			t := cmd.Targets()
			a, b := t[0], t[1]
			outer := func() (*ops.Command, error) {
				return ops.NewCommand(ops.X, [][]ops.WeakQubitRef{{a}}, []ops.WeakQubitRef{b}, cmd.Tags()...)
			}
			first, err := outer()
			if err != nil {
				return nil, err
			}
			middle, err := ops.NewCommand(ops.X, [][]ops.WeakQubitRef{{b}},
				append(cmd.Controls(), a), cmd.Tags()...)
			if err != nil {
				return nil, err
			}
			last, err := outer()
			if err != nil {
				return nil, err
			}
			return []*ops.Command{first, middle, last}, nil
		},
	}
}

// SplitX applies a multi-qubit X qubit by qubit.
func SplitX() DecompositionRule {
	return DecompositionRule{
		Name: "splitx",
		Match: func(cmd *ops.Command) bool {
			_, ok := cmd.Gate().(ops.XGate)
			return ok && len(cmd.Targets()) > 1
		},
		Decompose: func(cmd *ops.Command) ([]*ops.Command, error) {
			var out []*ops.Command
			for _, t := range cmd.Targets() {
				sub, err := ops.NewCommand(ops.X, [][]ops.WeakQubitRef{{t}}, cmd.Controls(), cmd.Tags()...)
				if err != nil {
					return nil, err
				}
				out = append(out, sub)
			}
			return out, nil
		},
	}
}
