package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	qasmWidth := m.width / 3
	circuitWidth := m.width - qasmWidth - 4
	controlsHeight := 4
	registersHeight := len(m.registers) + 4
	circuitHeight := max(m.height-controlsHeight-registersHeight-4, 6)

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderCircuitPanel(circuitWidth, circuitHeight),
		m.renderRegisterPanel(circuitWidth, registersHeight-2))
	topRow := lipgloss.JoinHorizontal(lipgloss.Top, left, m.renderQASMPanel(qasmWidth, circuitHeight+registersHeight))
	frame := lipgloss.JoinVertical(lipgloss.Left, topRow, m.renderControlsPanel(m.width-4, controlsHeight-2))

	if m.focus == focusMenu {
		frame = overlayAt(frame, m.renderMenu(), 2, 2)
	}
	return frame
}

func (m Model) renderCircuitPanel(width, height int) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Circuit"))
	fmt.Fprintf(&sb, "  %s\n\n", dimStyle.Render(fmt.Sprintf("step %d/%d", m.step, m.total())))

	switch {
	case m.parseErr != nil:
		sb.WriteString(errorStyle.Render(m.parseErr.Error()))
	case m.circuit == "":
		sb.WriteString(dimStyle.Render("(no qubits)"))
	default:
		sb.WriteString(m.circuit)
	}
	sb.WriteString("\n")

	if m.prog != nil && m.step < m.total() {
		in := m.prog.Instructions[m.step]
		fmt.Fprintf(&sb, "\n  next (line %d): %s", in.Line, nextStyle.Render(in.String()))
	}
	if m.runErr != nil {
		fmt.Fprintf(&sb, "\n  %s", errorStyle.Render(m.runErr.Error()))
	}
	if m.statusMsg != "" {
		fmt.Fprintf(&sb, "\n  %s", activeStyle.Render(m.statusMsg))
	}

	return circuitStyle.Width(width).Height(height).Render(sb.String())
}

func (m Model) renderRegisterPanel(width, height int) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Registers"))
	sb.WriteString("\n")
	for _, r := range m.registers {
		fmt.Fprintf(&sb, "%-8s = %-6d %s\n", fmt.Sprintf("%s[%d]", r.name, r.size), r.value, dimStyle.Render(bits(r.value, r.size)))
	}
	if m.result != nil {
		for _, c := range m.prog.CRegs {
			fmt.Fprintf(&sb, "%-8s = %-6d %s\n", fmt.Sprintf("%s[%d]", c.Name, c.Size), m.result.Cregs[c.Name], dimStyle.Render("measured"))
		}
	}
	return registerStyle.Width(width).Height(height).Render(strings.TrimRight(sb.String(), "\n"))
}

// bits prints v most significant bit first.
func bits(v int64, width int) string {
	s := strconv.FormatInt(v, 2)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func (m Model) renderQASMPanel(width, height int) string {
	var sb strings.Builder

	title := "QASM Editor"
	if m.focus == focusQASM {
		title += " [ACTIVE]"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	sb.WriteString(m.editor.View())

	return qasmStyle.Width(width).Height(height).Render(sb.String())
}

func (m Model) renderControlsPanel(width, height int) string {
	var sb strings.Builder

	sb.WriteString(activeStyle.Render("Step:    "))
	sb.WriteString("n/→ Next  p/← Previous  g First  G Last")
	sb.WriteString("    ")
	sb.WriteString(activeStyle.Render("a"))
	sb.WriteString(" Insert statement\n")

	sb.WriteString(activeStyle.Render("Actions: "))
	sb.WriteString("Tab Switch focus  ^S Save  q/^C Quit")

	return controlsStyle.Width(width).Height(height).Render(sb.String())
}

// overlayAt composites overlay on top of bg with its top-left corner at
// column x, row y.
func overlayAt(bg, overlay string, x, y int) string {
	bgLines := strings.Split(bg, "\n")
	for i, ov := range strings.Split(overlay, "\n") {
		row := y + i
		if row < 0 || row >= len(bgLines) {
			continue
		}
		line := bgLines[row]
		if w := ansi.StringWidth(line); w < x {
			line += strings.Repeat(" ", x-w)
		}
		bgLines[row] = ansi.Truncate(line, x, "") + ov + ansi.TruncateLeft(line, x+ansi.StringWidth(ov), "")
	}
	return strings.Join(bgLines, "\n")
}
