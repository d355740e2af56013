package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	glua "github.com/yuin/gopher-lua"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/lua"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	memberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// visibleHistory is how many evaluated lines the scrollback shows.
const visibleHistory = 8

type consoleModel struct {
	err     error
	L       *glua.LState
	binder  *lua.Binder
	classes []*mirror.Class
	listing string
	printed *strings.Builder

	input     textinput.Model
	history   []historyEntry
	recall    []string
	recallIdx int

	showClasses bool
	busy        bool
}

type historyEntry struct {
	input  string
	output string
	failed bool
}

type boundMsg struct {
	err     error
	L       *glua.LState
	binder  *lua.Binder
	listing string
	printed *strings.Builder
}

type evalResultMsg struct {
	input  string
	output string
	failed bool
}

func newConsoleModel(classes []*mirror.Class) *consoleModel {
	ti := textinput.New()
	ti.Prompt = "lua> "
	ti.Width = 72
	ti.Focus()

	return &consoleModel{
		classes:     classes,
		input:       ti,
		showClasses: true,
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return m.bindClasses
}

// bindClasses opens the Lua state, binds every demo class, and reroutes
// print into the model's capture buffer so guest output lands in the
// scrollback instead of the raw terminal.
func (m *consoleModel) bindClasses() tea.Msg {
	L, b, err := newState(m.classes)
	if err != nil {
		return boundMsg{err: err}
	}

	listing, err := renderListing(m.classes)
	if err != nil {
		b.Close()
		L.Close()
		return boundMsg{err: err}
	}

	printed := &strings.Builder{}
	L.SetGlobal("print", L.NewFunction(func(L *glua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.Get(i + 1).String()
		}
		printed.WriteString(strings.Join(parts, "\t"))
		printed.WriteByte('\n')
		return 0
	}))

	return boundMsg{L: L, binder: b, listing: listing, printed: printed}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			if m.binder != nil {
				m.binder.Close()
			}
			if m.L != nil {
				m.L.Close()
			}
			return m, tea.Quit

		case "tab":
			m.showClasses = !m.showClasses
			return m, nil

		case "up":
			if m.recallIdx > 0 {
				m.recallIdx--
				m.input.SetValue(m.recall[m.recallIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.recallIdx < len(m.recall) {
				m.recallIdx++
				if m.recallIdx == len(m.recall) {
					m.input.Reset()
				} else {
					m.input.SetValue(m.recall[m.recallIdx])
					m.input.CursorEnd()
				}
			}
			return m, nil

		case "enter":
			if m.busy || m.L == nil {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.busy = true
			return m, m.eval(line)
		}

	case boundMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.L = msg.L
		m.binder = msg.binder
		m.listing = msg.listing
		m.printed = msg.printed
		return m, nil

	case evalResultMsg:
		m.busy = false
		m.history = append(m.history, historyEntry{
			input:  msg.input,
			output: msg.output,
			failed: msg.failed,
		})
		m.recall = append(m.recall, msg.input)
		m.recallIdx = len(m.recall)
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// eval runs one console line. Evaluations never overlap: enter is
// ignored while busy, so the single Lua state stays unshared.
func (m *consoleModel) eval(line string) tea.Cmd {
	L, printed := m.L, m.printed
	return func() tea.Msg {
		out, err := evalChunk(L, line)
		failed := err != nil
		if failed {
			out = err.Error()
		}
		if p := printed.String(); p != "" {
			printed.Reset()
			out = p + out
		}
		return evalResultMsg{input: line, output: strings.TrimRight(out, "\n"), failed: failed}
	}
}

// evalChunk compiles the line as an expression first so results echo
// back, falling back to a plain statement when that fails to parse.
func evalChunk(L *glua.LState, line string) (string, error) {
	top := L.GetTop()

	fn, err := L.LoadString("return " + line)
	if err != nil {
		fn, err = L.LoadString(line)
		if err != nil {
			return "", err
		}
	}

	L.Push(fn)
	if err := L.PCall(0, glua.MultRet, nil); err != nil {
		L.SetTop(top)
		return "", err
	}

	var parts []string
	for i := top + 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	L.SetTop(top)
	return strings.Join(parts, "\t"), nil
}

func (m *consoleModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.L == nil {
		return "Binding classes..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Mirror Console"))
	b.WriteString(" lua\n\n")

	if m.showClasses {
		b.WriteString(m.styledListing())
		b.WriteString("\n")
	}

	start := len(m.history) - visibleHistory
	if start < 0 {
		start = 0
	}
	for _, h := range m.history[start:] {
		b.WriteString(helpStyle.Render("lua> "))
		b.WriteString(h.input)
		b.WriteString("\n")
		if h.output != "" {
			style := resultStyle
			if h.failed {
				style = errorStyle
			}
			b.WriteString(style.Render(h.output))
			b.WriteString("\n")
		}
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter eval • ↑/↓ history • tab classes • ctrl+c quit"))

	return b.String()
}

// styledListing colors the plain listing: class headers green, members
// blue.
func (m *consoleModel) styledListing() string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(m.listing, "\n"), "\n") {
		switch {
		case line == "":
			b.WriteString("\n")
		case strings.HasPrefix(line, "  "):
			b.WriteString(memberStyle.Render(line))
			b.WriteString("\n")
		default:
			b.WriteString(classStyle.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func runInteractive(classes []*mirror.Class) error {
	p := tea.NewProgram(newConsoleModel(classes), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
