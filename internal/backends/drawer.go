package backends

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"qpipe/internal/cengines"
	"qpipe/internal/ops"
	"qpipe/internal/qerr"
)

// CircuitItem is one gate occurrence on the drawer's lines. Lines and
// CtrlLines hold qubit ids as the drawer received them.
type CircuitItem struct {
	Gate      ops.Gate
	Lines     []int
	CtrlLines []int
}

// AllLines returns control lines followed by target lines.
func (it *CircuitItem) AllLines() []int {
	return append(append([]int(nil), it.CtrlLines...), it.Lines...)
}

// DrawerOption configures a CircuitDrawer.
type DrawerOption func(*CircuitDrawer)

// WithDefaultMeasure sets the outcome reported for every measurement when
// the drawer is the last engine.
func WithDefaultMeasure(v int) DrawerOption {
	return func(d *CircuitDrawer) { d.defaultMeasure = v == 1 }
}

// WithInput makes the drawer ask for measurement outcomes: a prompt is
// written to prompt and a line holding 0 or 1 is read from r.
func WithInput(r io.Reader, prompt io.Writer) DrawerOption {
	return func(d *CircuitDrawer) {
		d.input = bufio.NewScanner(r)
		d.prompt = prompt
	}
}

// CircuitDrawer records the circuit it sees and renders it as text.
type CircuitDrawer struct {
	cengines.BasicEngine
	defaultMeasure bool
	input          *bufio.Scanner
	prompt         io.Writer

	locations map[int]int
	lines     map[int][]*CircuitItem
	items     []*CircuitItem
	started   bool
}

func NewCircuitDrawer(opts ...DrawerOption) *CircuitDrawer {
	d := &CircuitDrawer{
		locations: make(map[int]int),
		lines:     make(map[int][]*CircuitItem),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetQubitLocations places qubit ids on drawing lines. The keys and values
// must be the same set of ids, and it only works before the first command.
func (d *CircuitDrawer) SetQubitLocations(locations map[int]int) error {
	if d.started {
		return qerr.InvalidState("qubit locations must be set before any command is drawn")
	}
	used := make(map[int]bool, len(locations))
	for _, loc := range locations {
		if used[loc] {
			return qerr.InvalidArgument("location %d assigned twice", loc)
		}
		used[loc] = true
	}
	for id := range locations {
		if !used[id] {
			return qerr.InvalidArgument("qubit locations must be a permutation of the qubit ids")
		}
	}
	d.locations = make(map[int]int, len(locations))
	for id, loc := range locations {
		d.locations[id] = loc
	}
	return nil
}

func (d *CircuitDrawer) IsAvailable(cmd *ops.Command) bool {
	if d.IsLastEngine() {
		return true
	}
	return d.Next().IsAvailable(cmd)
}

func (d *CircuitDrawer) Receive(cmds []*ops.Command) error {
	for _, cmd := range cmds {
		if _, ok := cmd.Gate().(ops.FlushGate); ok {
			continue
		}
		if err := d.record(cmd); err != nil {
			return err
		}
	}
	return d.Send(cmds)
}

func (d *CircuitDrawer) record(cmd *ops.Command) error {
	d.started = true
	if _, ok := cmd.Gate().(ops.MeasureGate); ok {
		if cmd.ControlCount() > 0 {
			return qerr.InvalidArgument("measurement cannot have control qubits")
		}
		if d.IsLastEngine() {
			if err := d.reportMeasurement(cmd); err != nil {
				return err
			}
		}
	}

	item := &CircuitItem{Gate: cmd.Gate()}
	for _, r := range cmd.Targets() {
		item.Lines = append(item.Lines, r.ID)
	}
	for _, r := range cmd.Controls() {
		item.CtrlLines = append(item.CtrlLines, r.ID)
	}
	for _, l := range item.AllLines() {
		if _, ok := d.locations[l]; !ok {
			d.locations[l] = l
		}
		d.lines[l] = append(d.lines[l], item)
	}
	d.items = append(d.items, item)
	return nil
}

func (d *CircuitDrawer) reportMeasurement(cmd *ops.Command) error {
	t := cmd.Targets()[0]
	logical := t.ID
	if id, ok := ops.LogicalID(cmd.Tags()); ok {
		logical = id
	}
	v := d.defaultMeasure
	if d.input != nil {
		var err error
		if v, err = d.ask(logical); err != nil {
			return err
		}
	}
	return d.MainEngine().SetMeasurementResult(ops.WeakQubitRef{Engine: cmd.Engine(), ID: logical}, v)
}

func (d *CircuitDrawer) ask(id int) (bool, error) {
	for {
		if d.prompt != nil {
			fmt.Fprintf(d.prompt, "Input measurement result (0 or 1) for qubit %d: ", id)
		}
		if !d.input.Scan() {
			if err := d.input.Err(); err != nil {
				return false, err
			}
			return false, qerr.InvalidArgument("no measurement input for qubit %d", id)
		}
		switch strings.TrimSpace(d.input.Text()) {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
	}
}

// order returns the qubit ids sorted by drawing location.
func (d *CircuitDrawer) order() []int {
	ids := make([]int, 0, len(d.lines))
	for id := range d.lines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return d.locations[ids[i]] < d.locations[ids[j]] })
	return ids
}

// Lines returns the recorded items of every line, ordered by location.
func (d *CircuitDrawer) Lines() [][]CircuitItem {
	ids := d.order()
	out := make([][]CircuitItem, len(ids))
	for i, id := range ids {
		for _, it := range d.lines[id] {
			out[i] = append(out[i], *it)
		}
	}
	return out
}

// Render draws the recorded circuit, one wire per line.
func (d *CircuitDrawer) Render() string {
	ids := d.order()
	pos := make(map[int]int, len(ids))
	labels := make([]int, len(ids))
	for i, id := range ids {
		pos[id] = i
		labels[i] = d.locations[id]
	}
	return renderGrid(layout(d.items, pos, len(ids)), labels)
}
