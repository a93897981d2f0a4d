package backends

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"qpipe/internal/cengines"
	"qpipe/internal/ops"
)

// CommandPrinter writes the text form of every command it sees. As the last
// engine it answers measurements with a fixed outcome.
type CommandPrinter struct {
	cengines.BasicEngine
	w              io.Writer
	logger         *zap.Logger
	defaultMeasure bool
}

func NewCommandPrinter(w io.Writer, logger *zap.Logger, defaultMeasure bool) *CommandPrinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandPrinter{w: w, logger: logger, defaultMeasure: defaultMeasure}
}

func (p *CommandPrinter) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if _, ok := cmd.Gate().(ops.FlushGate); ok {
			continue
		}
		if err := p.print(cmd); err != nil {
			return err
		}
	}
	return p.Send(cmds)
}

func (p *CommandPrinter) print(cmd *ops.Command) error {
	p.logger.Debug("command", zap.Stringer("cmd", cmd))
	_, isMeasure := cmd.Gate().(ops.MeasureGate)
	if !isMeasure || !p.IsLastEngine() {
		_, err := fmt.Fprintln(p.w, cmd)
		return err
	}

	t := cmd.Targets()[0]
	logical := t.ID
	if id, ok := ops.LogicalID(cmd.Tags()); ok {
		logical = id
	}
	if err := p.MainEngine().SetMeasurementResult(ops.WeakQubitRef{Engine: cmd.Engine(), ID: logical}, p.defaultMeasure); err != nil {
		return err
	}
	v := 0
	if p.defaultMeasure {
		v = 1
	}
	_, err := fmt.Fprintf(p.w, "%s -> %d\n", cmd, v)
	return err
}
