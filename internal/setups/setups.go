// Package setups builds a MainEngine and its chains from configuration.
package setups

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"qpipe/internal/backends"
	"qpipe/internal/cengines"
	"qpipe/internal/config"
	"qpipe/internal/qerr"
)

// Handles gives typed access to the backends Build created, keyed by chain
// name.
type Handles struct {
	Classical map[string]*backends.ClassicalRegisterBackend
	Drawers   map[string]*backends.CircuitDrawer
	Printers  map[string]*backends.CommandPrinter
	Counters  map[string]*backends.ResourceCounter
	// Order lists chain names as configured.
	Order []string
}

// Drawer returns the first configured drawer.
func (h *Handles) Drawer() (*backends.CircuitDrawer, bool) {
	for _, name := range h.Order {
		if d, ok := h.Drawers[name]; ok {
			return d, true
		}
	}
	return nil, false
}

// Simulator returns the first configured classical backend.
func (h *Handles) Simulator() (*backends.ClassicalRegisterBackend, bool) {
	for _, name := range h.Order {
		if b, ok := h.Classical[name]; ok {
			return b, true
		}
	}
	return nil, false
}

type options struct {
	out   io.Writer
	input io.Reader
}

type Option func(*options)

// WithOutput sets where printer backends write. Defaults to stdout.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithMeasureInput makes drawer backends ask for measurement outcomes on r,
// prompting on the output writer.
func WithMeasureInput(r io.Reader) Option { return func(o *options) { o.input = r } }

// Build creates one chain per configured entry, named as configured.
// Resource counters register on reg with a chain label; a nil reg skips
// registration.
func Build(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer, opts ...Option) (*cengines.MainEngine, *Handles, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if len(cfg.Chains) == 0 {
		return nil, nil, qerr.InvalidArgument("no chains configured")
	}

	h := &Handles{
		Classical: make(map[string]*backends.ClassicalRegisterBackend),
		Drawers:   make(map[string]*backends.CircuitDrawer),
		Printers:  make(map[string]*backends.CommandPrinter),
		Counters:  make(map[string]*backends.ResourceCounter),
	}

	var eng *cengines.MainEngine
	for i, c := range cfg.Chains {
		backend, err := h.backend(c, logger, reg, o)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "chain %q", c.Name)
		}
		stages := stagesFor(c)
		if i == 0 {
			eng, err = cengines.NewNamedMainEngine(logger, c.Name, backend, stages...)
		} else {
			err = eng.AddChain(c.Name, backend, stages...)
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "chain %q", c.Name)
		}
		h.Order = append(h.Order, c.Name)
	}
	return eng, h, nil
}

func (h *Handles) backend(c config.ChainConfig, logger *zap.Logger, reg prometheus.Registerer, o options) (cengines.Engine, error) {
	log := logger.With(zap.String("chain", c.Name))
	switch c.Backend {
	case config.BackendClassical:
		policy, err := backends.ParseOverflowPolicy(c.Overflow)
		if err != nil {
			return nil, err
		}
		b := backends.NewClassicalRegisterBackend(
			backends.WithOverflowPolicy(policy),
			backends.WithClassicalLogger(log))
		h.Classical[c.Name] = b
		return b, nil
	case config.BackendDrawer:
		drawerOpts := []backends.DrawerOption{backends.WithDefaultMeasure(c.DefaultMeasure)}
		if o.input != nil {
			drawerOpts = append(drawerOpts, backends.WithInput(o.input, o.out))
		}
		d := backends.NewCircuitDrawer(drawerOpts...)
		if len(c.Locations) > 0 {
			if err := d.SetQubitLocations(c.Locations); err != nil {
				return nil, err
			}
		}
		h.Drawers[c.Name] = d
		return d, nil
	case config.BackendPrinter:
		p := backends.NewCommandPrinter(o.out, log, c.DefaultMeasure == 1)
		h.Printers[c.Name] = p
		return p, nil
	case config.BackendResources:
		var chainReg prometheus.Registerer
		if reg != nil {
			chainReg = prometheus.WrapRegistererWith(prometheus.Labels{"chain": c.Name}, reg)
		}
		rc, err := backends.NewResourceCounter(chainReg)
		if err != nil {
			return nil, err
		}
		h.Counters[c.Name] = rc
		return rc, nil
	}
	return nil, qerr.InvalidArgument("unknown backend %q", c.Backend)
}

// stagesFor orders the optional stages: decomposition first so the mapper
// sees the final commands, then buffering, then id mapping, then the gate
// filter the replacer decomposes against.
func stagesFor(c config.ChainConfig) []cengines.Engine {
	var stages []cengines.Engine
	if c.Decompose {
		stages = append(stages, cengines.NewReplacer())
	}
	if c.Buffer > 0 {
		stages = append(stages, cengines.NewBuffer(c.Buffer))
	}
	if c.Mapped || len(c.Mapping) > 0 {
		stages = append(stages, tableMapper(c.Mapping))
	}
	if len(c.Gates) > 0 {
		stages = append(stages, cengines.NewGateFilter(c.Gates...))
	}
	return stages
}

// tableMapper maps ids found in table as given and every other id to the
// lowest physical id that is neither in use nor reserved by the table.
func tableMapper(table map[int]int) *cengines.Mapper {
	reserved := make(map[int]bool, len(table))
	for _, p := range table {
		reserved[p] = true
	}
	var m *cengines.Mapper
	m = cengines.NewManualMapper(func(logical int) int {
		if p, ok := table[logical]; ok {
			return p
		}
		used := make(map[int]bool)
		for _, p := range m.CurrentMapping() {
			used[p] = true
		}
		p := logical
		for used[p] || reserved[p] {
			p++
		}
		return p
	})
	return m
}
