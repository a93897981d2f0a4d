package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qpipe/internal/qasm"
	"qpipe/internal/tui"
	"qpipe/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		o           runOptions
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-run a QASM program every time it is saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			latest := &lastRun{}
			if metricsAddr != "" {
				o.resources = true
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(latest, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server", zap.Error(err))
					}
				}()
				defer srv.Close()
			}

			w, err := watch.New(args[0], a.logger)
			if err != nil {
				return err
			}
			defer w.Close()

			cache, err := qasm.NewCache(16)
			if err != nil {
				return err
			}
			cfg := withExtraChains(a.cfg, o)
			out := cmd.OutOrStdout()
			err = w.Run(ctx, func() error {
				fmt.Fprintf(out, "── %s  %s\n", args[0], time.Now().Format(time.TimeOnly))
				src, err := os.ReadFile(args[0])
				if err != nil {
					a.logger.Warn("read program", zap.Error(err))
					return nil
				}
				prog, err := cache.Parse(string(src))
				if err == nil {
					run := o
					if metricsAddr != "" {
						reg := prometheus.NewRegistry()
						run.registry = reg
						latest.set(reg)
					}
					err = a.execute(out, cfg, prog, run)
				}
				if err != nil {
					fmt.Fprintln(out, "error:", err)
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&o.draw, "draw", false, "also draw the circuit")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve gate counters for Prometheus on this address")
	return cmd
}

// lastRun serves the metrics of the most recent run. Each run registers
// fresh counters, so a new registry replaces the previous one.
type lastRun struct {
	mu  sync.Mutex
	reg *prometheus.Registry
}

func (l *lastRun) set(reg *prometheus.Registry) {
	l.mu.Lock()
	l.reg = reg
	l.mu.Unlock()
}

func (l *lastRun) Gather() ([]*dto.MetricFamily, error) {
	l.mu.Lock()
	reg := l.reg
	l.mu.Unlock()
	if reg == nil {
		return nil, nil
	}
	return reg.Gather()
}

func (a *app) tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui [FILE]",
		Short: "Step through a QASM program interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path, src string
			if len(args) == 1 {
				path = args[0]
				data, err := os.ReadFile(path)
				if err != nil && !os.IsNotExist(err) {
					return err
				}
				src = string(data)
			}
			m, err := tui.New(path, src, a.cfg, a.logger)
			if err != nil {
				return err
			}
			return tui.Run(m)
		},
	}
}
