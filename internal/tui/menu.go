package tui

import (
	"fmt"
	"strings"
)

// menuItem is a statement template; %[1]s is the first qreg and %[2]s the
// second (or the first again when there is only one).
type menuItem struct {
	name     string
	template string
	symbol   string
}

type menuCategory struct {
	name  string
	items []menuItem
}

var statementMenu = []menuCategory{
	{
		name: "Gates",
		items: []menuItem{
			{name: "Pauli-X (NOT)", template: "x %[1]s[0];", symbol: "X"},
			{name: "CNOT", template: "cx %[1]s[0], %[1]s[1];", symbol: "●─⊕"},
			{name: "Toffoli (CCX)", template: "ccx %[1]s[0], %[1]s[1], %[1]s[2];", symbol: "●─●─⊕"},
			{name: "SWAP", template: "swap %[1]s[0], %[1]s[1];", symbol: "×─×"},
			{name: "Hadamard", template: "h %[1]s[0];", symbol: "H"},
		},
	},
	{
		name: "Arithmetic",
		items: []menuItem{
			{name: "Add constant", template: "// qpipe: add %[1]s 1", symbol: "+n"},
			{name: "Subtract constant", template: "// qpipe: sub %[1]s 1", symbol: "-n"},
			{name: "Add register", template: "// qpipe: addreg %[1]s %[2]s", symbol: "b+=a"},
			{name: "Subtract register", template: "// qpipe: subreg %[1]s %[2]s", symbol: "b-=a"},
		},
	},
	{
		name: "Measurement",
		items: []menuItem{
			{name: "Measure", template: "measure %[1]s[0] -> c[0];", symbol: "M"},
			{name: "Barrier", template: "barrier %[1]s;", symbol: "┃"},
		},
	},
}

func (it menuItem) statement(regs []string) string {
	first, second := "q", "q"
	if len(regs) > 0 {
		first, second = regs[0], regs[0]
	}
	if len(regs) > 1 {
		second = regs[1]
	}
	return fmt.Sprintf(it.template, first, second)
}

// renderMenu renders the floating statement picker.
func (m Model) renderMenu() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Insert Statement"))
	sb.WriteString("\n")

	for i, cat := range statementMenu {
		name := " " + cat.name + " "
		if i == m.menuCat {
			sb.WriteString(activeStyle.Render(name))
		} else {
			sb.WriteString(dimStyle.Render(name))
		}
		if i < len(statementMenu)-1 {
			sb.WriteString(dimStyle.Render("│"))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(strings.Repeat("─", 38)))
	sb.WriteString("\n")

	for i, item := range statementMenu[m.menuCat].items {
		if i == m.menuItem {
			sb.WriteString(menuSelectedStyle.Render(" ▸ "))
			sb.WriteString(menuSelectedStyle.Render(fmt.Sprintf("%-20s", item.name)))
			sb.WriteString(nextStyle.Render(item.symbol))
		} else {
			sb.WriteString("   ")
			sb.WriteString(menuNormalStyle.Render(fmt.Sprintf("%-20s", item.name)))
			sb.WriteString(dimStyle.Render(item.symbol))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render(" ↑↓ Select  ←→ Cat  ⏎ Insert  Esc ✕"))

	return menuBorderStyle.Render(sb.String())
}
