// Package tui is an interactive stepper: edit QASM on the right, watch the
// drawn circuit and the classical registers follow the executed prefix.
package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"qpipe/internal/config"
	"qpipe/internal/ops"
	"qpipe/internal/qasm"
	"qpipe/internal/setups"
)

const defaultPath = "circuit.qasm"

// focus represents which panel has keyboard input.
type focus int

const (
	focusCircuit focus = iota
	focusQASM
	focusMenu
)

// register is one qreg as the classical backend holds it after a step.
type register struct {
	name  string
	size  int
	value int64
}

// Model represents the TUI application state.
type Model struct {
	cfg    *config.Config
	logger *zap.Logger
	cache  *qasm.Cache
	path   string

	editor  textarea.Model
	focus   focus
	width   int
	height  int
	lastSrc string

	prog     *qasm.Program
	parseErr error
	// step is the number of instructions executed.
	step      int
	circuit   string
	registers []register
	result    *qasm.Result
	runErr    error
	statusMsg string

	menuCat  int
	menuItem int
}

// New opens src in the editor. path is where ctrl+s saves; cfg supplies
// the chains, with a drawer and a classical backend added when missing.
func New(path, src string, cfg *config.Config, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = defaultPath
	}
	cache, err := qasm.NewCache(64)
	if err != nil {
		return Model{}, err
	}

	ta := textarea.New()
	ta.Placeholder = "Edit QASM here..."
	ta.SetWidth(40)
	ta.SetHeight(20)
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.KeyMap.InsertNewline.SetEnabled(true)
	ta.SetValue(src)

	m := Model{
		cfg:    withPanels(cfg),
		logger: logger,
		cache:  cache,
		path:   path,
		editor: ta,
		focus:  focusCircuit,
	}
	m.reparse()
	return m, nil
}

// withPanels copies cfg and makes sure it draws and simulates. The drawer
// goes in front so the classical chain reports measurements last.
func withPanels(cfg *config.Config) *config.Config {
	if cfg == nil {
		cfg = config.Default()
	}
	out := *cfg
	out.Chains = append([]config.ChainConfig(nil), cfg.Chains...)

	var drawer, classical bool
	for _, c := range out.Chains {
		drawer = drawer || c.Backend == config.BackendDrawer
		classical = classical || c.Backend == config.BackendClassical
	}
	if !drawer {
		out.Chains = append([]config.ChainConfig{{Name: "circuit", Backend: config.BackendDrawer}}, out.Chains...)
	}
	if !classical {
		out.Chains = append(out.Chains, config.ChainConfig{
			Name: "registers", Backend: config.BackendClassical, Mapped: true, Overflow: "wrap",
		})
	}
	return &out
}

// reparse reads the editor, keeping the step within the new program.
func (m *Model) reparse() {
	src := m.editor.Value()
	if src == m.lastSrc && m.prog != nil {
		return
	}
	m.lastSrc = src
	prog, err := m.cache.Parse(src)
	m.parseErr = err
	if err != nil {
		return
	}
	m.prog = prog
	m.step = min(m.step, len(prog.Instructions))
	m.evaluate()
}

// evaluate runs the first m.step instructions on a fresh pipeline.
func (m *Model) evaluate() {
	m.circuit, m.registers, m.result, m.runErr = "", nil, nil, nil
	if m.prog == nil {
		return
	}
	eng, h, err := setups.Build(m.cfg, m.logger, nil)
	if err != nil {
		m.runErr = err
		return
	}
	sim, hasSim := h.Simulator()

	var regs []register
	inspect := func(qregs map[string]ops.Qureg) error {
		if !hasSim {
			return nil
		}
		for _, r := range m.prog.QRegs {
			refs, err := qregs[r.Name].Refs()
			if err != nil {
				return err
			}
			v, err := sim.ReadRegister(refs)
			if err != nil {
				return err
			}
			regs = append(regs, register{name: r.Name, size: r.Size, value: v})
		}
		return nil
	}
	m.result, m.runErr = m.prog.Run(eng, m.step, qasm.WithInspect(inspect))
	m.registers = regs
	if d, ok := h.Drawer(); ok {
		m.circuit = d.Render()
	}
	if m.runErr != nil {
		m.logger.Debug("step failed", zap.Int("step", m.step), zap.Error(m.runErr))
	}
}

func (m *Model) total() int {
	if m.prog == nil {
		return 0
	}
	return len(m.prog.Instructions)
}

func (m *Model) save() {
	if err := os.WriteFile(m.path, []byte(m.editor.Value()), 0o644); err != nil {
		m.statusMsg = fmt.Sprintf("Save error: %v", err)
		return
	}
	m.statusMsg = "Saved " + m.path
}

func (m *Model) insert(it menuItem) {
	var regs []string
	if m.prog != nil {
		for _, r := range m.prog.QRegs {
			regs = append(regs, r.Name)
		}
	}
	m.editor.CursorEnd()
	m.editor.InsertString("\n" + it.statement(regs))
	m.reparse()
}

// ──────────────────────────── Init / Update ────────────────────────────

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.editor.SetWidth(max(msg.Width/3-6, 20))
		m.editor.SetHeight(max(msg.Height-16, 4))

	case tea.KeyMsg:
		key := msg.String()
		m.statusMsg = ""

		if key == "ctrl+c" {
			return m, tea.Quit
		}
		if key == "ctrl+s" {
			m.save()
			return m, nil
		}

		switch m.focus {
		case focusCircuit:
			switch key {
			case "q":
				return m, tea.Quit
			case "tab":
				m.focus = focusQASM
				cmds = append(cmds, m.editor.Focus())
			case "n", "right", "l":
				if m.step < m.total() {
					m.step++
					m.evaluate()
				}
			case "p", "left", "h":
				if m.step > 0 {
					m.step--
					m.evaluate()
				}
			case "home", "g":
				m.step = 0
				m.evaluate()
			case "end", "G":
				m.step = m.total()
				m.evaluate()
			case "a":
				m.focus = focusMenu
				m.menuCat, m.menuItem = 0, 0
			}

		case focusMenu:
			switch key {
			case "esc":
				m.focus = focusCircuit
			case "up", "k":
				if m.menuItem > 0 {
					m.menuItem--
				}
			case "down", "j":
				if m.menuItem < len(statementMenu[m.menuCat].items)-1 {
					m.menuItem++
				}
			case "left", "h":
				if m.menuCat > 0 {
					m.menuCat--
					m.menuItem = 0
				}
			case "right", "l":
				if m.menuCat < len(statementMenu)-1 {
					m.menuCat++
					m.menuItem = 0
				}
			case "enter":
				m.insert(statementMenu[m.menuCat].items[m.menuItem])
				m.focus = focusCircuit
			}

		case focusQASM:
			switch key {
			case "tab", "esc":
				m.focus = focusCircuit
				m.editor.Blur()
			default:
				var cmd tea.Cmd
				m.editor, cmd = m.editor.Update(msg)
				cmds = append(cmds, cmd)
				m.reparse()
			}
		}

	default:
		if m.focus == focusQASM {
			var cmd tea.Cmd
			m.editor, cmd = m.editor.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// Run starts the program on the terminal.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
