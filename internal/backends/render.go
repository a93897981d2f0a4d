package backends

import (
	"fmt"
	"strings"

	"qpipe/internal/ops"
)

// ──────────────────────────── Rendering helpers ────────────────────────────

// padCenter centres a string within the given width, cutting it if needed.
func padCenter(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	total := width - len(r)
	left := total / 2
	right := total - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

// gateDisplayName returns a short display name for a gate.
func gateDisplayName(g ops.Gate) string {
	switch g := g.(type) {
	case ops.MeasureGate:
		return "M"
	case ops.SdagGate:
		return "S†"
	case ops.TdagGate:
		return "T†"
	case *ops.MathGate:
		name := g.String()
		if i := strings.IndexByte(name, '('); i > 0 {
			name = name[:i]
		}
		return name
	}
	return g.String()
}

type cellRole int

const (
	roleNone cellRole = iota
	roleTarget
	roleControl
	rolePass
)

type cell struct {
	item      *CircuitItem
	role      cellRole
	vertAbove bool
	vertBelow bool
}

// renderCell returns 3 lines (top, mid, bot) for one cell, each cellW
// visible characters wide. alive tells whether the wire exists here.
func renderCell(c cell, alive bool) (top, mid, bot string) {
	emptyRow := strings.Repeat(" ", cellW)
	halfW := cellW / 2
	vertRow := strings.Repeat(" ", halfW) + "│" + strings.Repeat(" ", cellW-halfW-1)
	dashL := (cellW - 1) / 2
	dashR := cellW - dashL - 1
	wire := strings.Repeat("─", cellW)
	if !alive {
		wire = emptyRow
	}

	top, bot = emptyRow, emptyRow
	if c.vertAbove {
		top = vertRow
	}
	if c.vertBelow {
		bot = vertRow
	}

	switch c.role {
	case roleNone:
		mid = wire
		return
	case rolePass:
		if alive {
			mid = strings.Repeat("─", dashL) + "┼" + strings.Repeat("─", dashR)
		} else {
			mid = vertRow
		}
		return
	case roleControl:
		mid = strings.Repeat("─", dashL) + gateStyle.Render("●") + strings.Repeat("─", dashR)
		return
	}

	margin := (cellW - gateBoxW) / 2
	rightMargin := cellW - margin - gateBoxW
	box := func(name string, style func(...string) string) {
		top = strings.Repeat(" ", margin) + style("┌"+strings.Repeat("─", gateNameW)+"┐") + strings.Repeat(" ", rightMargin)
		mid = strings.Repeat("─", margin) + style("┤"+padCenter(name, gateNameW)+"├") + strings.Repeat("─", rightMargin)
		bot = strings.Repeat(" ", margin) + style("└"+strings.Repeat("─", gateNameW)+"┘") + strings.Repeat(" ", rightMargin)
	}

	switch c.item.Gate.(type) {
	case ops.AllocateGate:
		mid = strings.Repeat(" ", margin) + dimStyle.Render("|0>") + strings.Repeat("─", cellW-margin-3)
	case ops.DeallocateGate:
		mid = strings.Repeat("─", dashL) + dimStyle.Render("╳") + strings.Repeat(" ", dashR)
	case ops.MeasureGate:
		box("M", measureStyle.Render)
	case ops.SwapGate:
		mid = strings.Repeat("─", dashL) + gateStyle.Render("×") + strings.Repeat("─", dashR)
	case ops.XGate:
		if len(c.item.CtrlLines) > 0 {
			mid = strings.Repeat("─", dashL) + gateStyle.Render("⊕") + strings.Repeat("─", dashR)
			return
		}
		box("X", gateStyle.Render)
	default:
		box(gateDisplayName(c.item.Gate), gateStyle.Render)
	}
	return
}

// layout assigns every item a column so that items sharing a line, or
// crossing it vertically, never overlap. rows is the number of lines.
func layout(items []*CircuitItem, pos map[int]int, rows int) [][]cell {
	var grid [][]cell
	free := make([]int, rows)
	for _, it := range items {
		lo, hi := rows, -1
		for _, l := range it.AllLines() {
			p := pos[l]
			lo, hi = min(lo, p), max(hi, p)
		}
		if hi < 0 {
			continue
		}
		col := 0
		for p := lo; p <= hi; p++ {
			col = max(col, free[p])
		}
		for len(grid) <= col {
			grid = append(grid, make([]cell, rows))
		}
		for p := lo; p <= hi; p++ {
			grid[col][p] = cell{item: it, role: rolePass, vertAbove: p > lo, vertBelow: p < hi}
			free[p] = col + 1
		}
		for _, l := range it.CtrlLines {
			grid[col][pos[l]].role = roleControl
		}
		for _, l := range it.Lines {
			grid[col][pos[l]].role = roleTarget
		}
	}
	return grid
}

// renderGrid draws labelled wires, one per location.
func renderGrid(grid [][]cell, labels []int) string {
	var sb strings.Builder
	for p, loc := range labels {
		topLine := strings.Repeat(" ", labelVisualW)
		midLine := qubitLabelStyle.Render(fmt.Sprintf("%-*s", labelVisualW, fmt.Sprintf("q%d", loc)))
		botLine := topLine

		alive := false
		for _, column := range grid {
			c := column[p]
			if c.role == roleTarget {
				if _, ok := c.item.Gate.(ops.AllocateGate); ok {
					alive = true
				}
			}
			top, mid, bot := renderCell(c, alive)
			if c.role == roleTarget {
				if _, ok := c.item.Gate.(ops.DeallocateGate); ok {
					alive = false
				}
			}
			topLine += top
			midLine += mid
			botLine += bot
		}
		sb.WriteString(strings.TrimRight(topLine, " ") + "\n")
		sb.WriteString(strings.TrimRight(midLine, " ") + "\n")
		sb.WriteString(strings.TrimRight(botLine, " ") + "\n")
	}
	return sb.String()
}
