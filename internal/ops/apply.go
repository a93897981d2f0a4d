package ops

import "qpipe/internal/qerr"

// Apply issues gate on the target registers, one qubit group per register.
// Measure is applied to every qubit separately.
func Apply(gate Gate, targets ...Qureg) error {
	return ApplyControlled(gate, nil, targets...)
}

// ApplyControlled issues gate on targets, conditioned on every qubit in
// controls.
func ApplyControlled(gate Gate, controls Qureg, targets ...Qureg) error {
	if len(targets) == 0 || len(targets[0]) == 0 {
		return qerr.InvalidArgument("%s applied without targets", gate)
	}
	ctrls, err := controls.Refs()
	if err != nil {
		return err
	}

	var cmds []*Command
	if _, ok := gate.(MeasureGate); ok {
		for _, reg := range targets {
			for _, q := range reg {
				ref, err := q.Ref()
				if err != nil {
					return err
				}
				cmd, err := NewCommand(gate, [][]WeakQubitRef{{ref}}, ctrls)
				if err != nil {
					return err
				}
				cmds = append(cmds, cmd)
			}
		}
	} else {
		groups := make([][]WeakQubitRef, len(targets))
		for i, reg := range targets {
			if groups[i], err = reg.Refs(); err != nil {
				return err
			}
		}
		cmd, err := NewCommand(gate, groups, ctrls)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}
	return targets[0][0].Engine().Receive(cmds)
}

// ApplyEach issues gate once per qubit of reg, in order.
func ApplyEach(gate Gate, reg Qureg) error {
	for _, q := range reg {
		if err := Apply(gate, Qureg{q}); err != nil {
			return err
		}
	}
	return nil
}
