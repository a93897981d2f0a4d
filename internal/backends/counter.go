package backends

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"qpipe/internal/cengines"
	"qpipe/internal/ops"
)

// GateClass identifies a gate together with its number of controls.
type GateClass struct {
	Gate     string
	Controls int
}

func (c GateClass) String() string {
	switch {
	case c.Controls == 1:
		return "C" + c.Gate
	case c.Controls > 1:
		return fmt.Sprintf("C%d%s", c.Controls, c.Gate)
	}
	return c.Gate
}

// ResourceCounter counts gates and tracks how many qubits are alive. As the
// last engine it reports 0 for every measurement.
type ResourceCounter struct {
	cengines.BasicEngine
	counts   map[GateClass]int
	active   int
	maxWidth int

	gateTotal   *prometheus.CounterVec
	activeGauge prometheus.Gauge
	widthGauge  prometheus.Gauge
}

// NewResourceCounter registers the counter's collectors on reg. A nil reg
// keeps them unregistered.
func NewResourceCounter(reg prometheus.Registerer) (*ResourceCounter, error) {
	c := &ResourceCounter{
		counts: make(map[GateClass]int),
		gateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qpipe",
			Name:      "gates_total",
			Help:      "Commands seen by the resource counter, by gate and control count.",
		}, []string{"gate", "controls"}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qpipe",
			Name:      "active_qubits",
			Help:      "Currently allocated qubits.",
		}),
		widthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qpipe",
			Name:      "max_width_qubits",
			Help:      "Largest number of simultaneously allocated qubits.",
		}),
	}
	if reg != nil {
		for _, col := range []prometheus.Collector{c.gateTotal, c.activeGauge, c.widthGauge} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *ResourceCounter) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if err := c.add(cmd); err != nil {
			return err
		}
	}
	return c.Send(cmds)
}

func (c *ResourceCounter) add(cmd *ops.Command) error {
	switch cmd.Gate().(type) {
	case ops.FlushGate:
		return nil
	case ops.AllocateGate:
		c.active++
		c.maxWidth = max(c.maxWidth, c.active)
		c.activeGauge.Set(float64(c.active))
		c.widthGauge.Set(float64(c.maxWidth))
	case ops.DeallocateGate:
		c.active--
		c.activeGauge.Set(float64(c.active))
	case ops.MeasureGate:
		if c.IsLastEngine() {
			t := cmd.Targets()[0]
			logical := t.ID
			if id, ok := ops.LogicalID(cmd.Tags()); ok {
				logical = id
			}
			if err := c.MainEngine().SetMeasurementResult(ops.WeakQubitRef{Engine: cmd.Engine(), ID: logical}, false); err != nil {
				return err
			}
		}
	}
	class := GateClass{Gate: cmd.Gate().String(), Controls: cmd.ControlCount()}
	c.counts[class]++
	c.gateTotal.WithLabelValues(class.Gate, fmt.Sprint(class.Controls)).Inc()
	return nil
}

// Counts returns a copy of the per-class totals.
func (c *ResourceCounter) Counts() map[GateClass]int {
	out := make(map[GateClass]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *ResourceCounter) MaxWidth() int { return c.maxWidth }

func (c *ResourceCounter) String() string {
	classes := make([]GateClass, 0, len(c.counts))
	for k := range c.counts {
		classes = append(classes, k)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].String() < classes[j].String() })

	var sb strings.Builder
	sb.WriteString("Gate counts:\n")
	for _, k := range classes {
		fmt.Fprintf(&sb, "    %s : %d\n", k, c.counts[k])
	}
	fmt.Fprintf(&sb, "\nMax. width (number of qubits) : %d.", c.maxWidth)
	return sb.String()
}
