package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"qpipe/internal/config"
	"qpipe/internal/qasm"
	"qpipe/internal/setups"
)

type runOptions struct {
	upTo      int
	draw      bool
	resources bool
	registry  prometheus.Registerer
	input     io.Reader
}

// withExtraChains adds a drawer and a resource counter in front of the
// configured chains when asked for and not already present.
func withExtraChains(cfg *config.Config, o runOptions) *config.Config {
	out := *cfg
	out.Chains = append([]config.ChainConfig(nil), cfg.Chains...)
	has := func(backend string) bool {
		for _, c := range out.Chains {
			if c.Backend == backend {
				return true
			}
		}
		return false
	}
	var front []config.ChainConfig
	if o.resources && !has(config.BackendResources) {
		front = append(front, config.ChainConfig{Name: "resources", Backend: config.BackendResources})
	}
	if o.draw && !has(config.BackendDrawer) {
		front = append(front, config.ChainConfig{Name: "circuit", Backend: config.BackendDrawer})
	}
	out.Chains = append(front, out.Chains...)
	return &out
}

// execute runs prog once on a freshly built pipeline and writes the
// classical registers, plus the drawing and gate counts when present.
func (a *app) execute(w io.Writer, cfg *config.Config, prog *qasm.Program, o runOptions) error {
	opts := []setups.Option{setups.WithOutput(w)}
	if o.input != nil {
		opts = append(opts, setups.WithMeasureInput(o.input))
	}
	eng, h, err := setups.Build(cfg, a.logger, o.registry, opts...)
	if err != nil {
		return err
	}
	res, runErr := prog.Run(eng, o.upTo)

	if d, ok := h.Drawer(); ok {
		fmt.Fprintln(w, d.Render())
	}
	for _, name := range h.Order {
		if c, ok := h.Counters[name]; ok {
			fmt.Fprintln(w, c)
		}
	}
	if runErr != nil {
		return runErr
	}
	_, err = io.WriteString(w, res.String())
	return err
}

func readProgram(path string) (*qasm.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read program")
	}
	prog, err := qasm.Parse(string(src))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return prog, nil
}

func (a *app) runCmd() *cobra.Command {
	o := runOptions{}
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a QASM program through the configured chains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(args[0])
			if err != nil {
				return err
			}
			o.registry = prometheus.NewRegistry()
			return a.execute(cmd.OutOrStdout(), withExtraChains(a.cfg, o), prog, o)
		},
	}
	cmd.Flags().IntVar(&o.upTo, "upto", -1, "execute only the first N instructions")
	cmd.Flags().BoolVar(&o.draw, "draw", false, "also draw the circuit")
	cmd.Flags().BoolVar(&o.resources, "resources", false, "also count gates")
	return cmd
}

func (a *app) drawCmd() *cobra.Command {
	var (
		o       runOptions
		measure int
		ask     bool
	)
	cmd := &cobra.Command{
		Use:   "draw FILE",
		Short: "Draw a QASM program without simulating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(args[0])
			if err != nil {
				return err
			}
			cfg := &config.Config{
				Logger: a.cfg.Logger,
				Chains: []config.ChainConfig{{Name: "circuit", Backend: config.BackendDrawer, DefaultMeasure: measure}},
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if ask {
				o.input = cmd.InOrStdin()
			}
			return a.execute(cmd.OutOrStdout(), cfg, prog, o)
		},
	}
	cmd.Flags().IntVar(&o.upTo, "upto", -1, "draw only the first N instructions")
	cmd.Flags().IntVar(&measure, "measure", 0, "outcome reported for every measurement (0 or 1)")
	cmd.Flags().BoolVar(&ask, "ask", false, "read measurement outcomes from stdin")
	return cmd
}
