package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"procaffinity/internal/affinity"
	"procaffinity/internal/apply"
	"procaffinity/internal/process"
)

// Host is the process capability the TUI reads from.
type Host interface {
	Enumerate(name string) ([]process.Process, error)
	Affinity(pid int) ([]int, error)
	CPUCount() (int, error)
}

type focus int

const (
	focusProcesses focus = iota
	focusCPUs
)

const (
	cpuColumnRows = 16
	initialStatus = "Select a process to view or set affinity."
)

type Model struct {
	host      Host
	runner    *apply.Runner
	name      string
	policies  []affinity.PolicyInfo
	procs     []process.Process
	selected  int
	cpuCount  int
	checked   []bool
	cpuCursor int
	focus     focus
	status    string
	editing   bool
	nameInput textinput.Model
	width     int
	height    int
}

type processesMsg struct {
	procs    []process.Process
	cpuCount int
	err      error
}

type affinityMsg struct {
	pid  int
	cpus []int
	err  error
}

type reportMsg struct {
	report *apply.Report
	err    error
}

type setResultMsg struct {
	result apply.Result
}

func NewModel(host Host, runner *apply.Runner, name string, groupSize int) Model {
	ti := textinput.New()
	ti.Prompt = "Process name: "
	ti.Placeholder = name
	ti.CharLimit = 64
	ti.Width = 30
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#c0caf5"))
	ti.PromptStyle = lipgloss.NewStyle().Foreground(secondaryColor)
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(primaryColor)
	ti.Cursor.SetMode(cursor.CursorStatic)

	return Model{
		host:      host,
		runner:    runner,
		name:      name,
		policies:  affinity.Policies(groupSize),
		status:    initialStatus,
		nameInput: ti,
		width:     80,
		height:    24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case processesMsg:
		return m.handleProcesses(msg)

	case affinityMsg:
		return m.handleAffinity(msg)

	case reportMsg:
		if msg.err != nil {
			m.status = statusForError(msg.err, m.name)
		} else {
			m.status = msg.report.Status()
		}
		// Allocation always runs on a fresh enumeration, so the list shown may
		// be stale now.
		return m, m.refresh()

	case setResultMsg:
		m.status = msg.result.Message()
		if msg.result.Outcome == apply.OutcomeNoSuchProcess {
			return m, m.refresh()
		}
		return m, m.loadAffinity()

	case tea.KeyMsg:
		if m.editing {
			return m.handleNameKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleNameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		m.editing = false
		m.nameInput.Blur()
		m.status = initialStatus
		return m, nil

	case tea.KeyEnter:
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			m.status = "Process name must not be empty."
			return m, nil
		}
		m.editing = false
		m.nameInput.Blur()
		m.name = name
		m.procs = nil
		m.selected = 0
		m.focus = focusProcesses
		m.status = "Refreshing process list..."
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		return m.moveCursor(-1)

	case "down", "j":
		return m.moveCursor(1)

	case "tab", "right", "left", "l", "h":
		if m.focus == focusProcesses && len(m.checked) > 0 {
			m.focus = focusCPUs
		} else {
			m.focus = focusProcesses
		}
		return m, nil

	case " ":
		if m.focus == focusCPUs && m.cpuCursor < len(m.checked) {
			m.checked[m.cpuCursor] = !m.checked[m.cpuCursor]
		}
		return m, nil

	case "enter":
		if len(m.procs) == 0 {
			m.status = "No process selected."
			return m, nil
		}
		return m, m.loadAffinity()

	case "s":
		return m.setSelected()

	case "r":
		m.status = "Refreshing process list..."
		return m, m.refresh()

	case "n", "/":
		m.editing = true
		m.nameInput.SetValue(m.name)
		m.nameInput.CursorEnd()
		m.status = "Enter a process name, esc to cancel."
		return m, m.nameInput.Focus()

	case "1", "2", "3", "4", "5", "6":
		idx := int(key[0] - '1')
		if idx >= len(m.policies) {
			return m, nil
		}
		info := m.policies[idx]
		m.status = fmt.Sprintf("Applying %s...", info.Name)
		return m, m.runPolicy(info.Policy)
	}
	return m, nil
}

func (m Model) moveCursor(delta int) (tea.Model, tea.Cmd) {
	if m.focus == focusCPUs {
		if len(m.checked) == 0 {
			return m, nil
		}
		m.cpuCursor = wrap(m.cpuCursor+delta, len(m.checked))
		return m, nil
	}

	if len(m.procs) == 0 {
		return m, nil
	}
	m.selected = wrap(m.selected+delta, len(m.procs))
	return m, m.loadAffinity()
}

func (m Model) setSelected() (tea.Model, tea.Cmd) {
	if len(m.procs) == 0 {
		m.status = "No process selected."
		return m, nil
	}
	cpus := make([]int, 0, len(m.checked))
	for i, on := range m.checked {
		if on {
			cpus = append(cpus, i)
		}
	}
	if len(cpus) == 0 {
		m.status = "Select at least one CPU."
		return m, nil
	}

	proc := m.procs[m.selected]
	runner := m.runner
	return m, func() tea.Msg {
		return setResultMsg{result: runner.Set(proc, cpus)}
	}
}

func (m Model) handleProcesses(msg processesMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = statusForError(msg.err, m.name)
		return m, nil
	}

	m.procs = msg.procs
	if msg.cpuCount != m.cpuCount || len(m.checked) != msg.cpuCount {
		m.cpuCount = msg.cpuCount
		m.checked = make([]bool, msg.cpuCount)
		m.cpuCursor = 0
	}
	if m.selected >= len(m.procs) {
		m.selected = 0
	}
	if m.status == "Refreshing process list..." {
		m.status = fmt.Sprintf("Found %d processes named '%s'.", len(m.procs), m.name)
	}
	if len(m.procs) == 0 {
		m.focus = focusProcesses
		for i := range m.checked {
			m.checked[i] = false
		}
		return m, nil
	}
	return m, m.loadAffinity()
}

func (m Model) handleAffinity(msg affinityMsg) (tea.Model, tea.Cmd) {
	if len(m.procs) == 0 || m.procs[m.selected].PID != msg.pid {
		// selection moved on
		return m, nil
	}
	if msg.err != nil {
		if errors.Is(msg.err, process.ErrNoSuchProcess) {
			m.status = fmt.Sprintf("Process %d no longer exists.", msg.pid)
			return m, m.refresh()
		}
		m.status = statusForError(msg.err, m.name)
		return m, nil
	}

	for i := range m.checked {
		m.checked[i] = false
	}
	for _, cpu := range msg.cpus {
		if cpu >= 0 && cpu < len(m.checked) {
			m.checked[cpu] = true
		}
	}
	return m, nil
}

func (m Model) refresh() tea.Cmd {
	host, name := m.host, m.name
	return func() tea.Msg {
		count, err := host.CPUCount()
		if err != nil {
			return processesMsg{err: fmt.Errorf("%w: %v", affinity.ErrInsufficientResources, err)}
		}
		procs, err := host.Enumerate(name)
		return processesMsg{procs: procs, cpuCount: count, err: err}
	}
}

func (m Model) loadAffinity() tea.Cmd {
	if len(m.procs) == 0 {
		return nil
	}
	host, pid := m.host, m.procs[m.selected].PID
	return func() tea.Msg {
		cpus, err := host.Affinity(pid)
		return affinityMsg{pid: pid, cpus: cpus, err: err}
	}
}

func (m Model) runPolicy(policy affinity.Policy) tea.Cmd {
	runner, name := m.runner, m.name
	return func() tea.Msg {
		report, err := runner.Auto(name, policy)
		return reportMsg{report: report, err: err}
	}
}

func statusForError(err error, name string) string {
	switch {
	case errors.Is(err, affinity.ErrNoTargetProcesses):
		return fmt.Sprintf("No processes found with name '%s'.", name)
	case errors.Is(err, affinity.ErrInsufficientResources):
		return "Error: Insufficient CPU cores available."
	case errors.Is(err, process.ErrAccessDenied):
		return "Access denied. Run as root."
	}
	return fmt.Sprintf("Error: %v", err)
}

func wrap(i, n int) int {
	if i < 0 {
		return n - 1
	}
	if i >= n {
		return 0
	}
	return i
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" CPU Affinity Manager "))
	b.WriteString("\n\n")

	processes := m.renderProcesses()
	cpus := m.renderCPUs()
	if m.focus == focusProcesses {
		processes = focusedPaneStyle.Render(processes)
		cpus = paneStyle.Render(cpus)
	} else {
		processes = paneStyle.Render(processes)
		cpus = focusedPaneStyle.Render(cpus)
	}
	actions := paneStyle.Render(m.renderActions())

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, processes, " ", cpus, " ", actions))
	b.WriteString("\n\n")
	if m.editing {
		b.WriteString("  ")
		b.WriteString(m.nameInput.View())
		b.WriteString("\n")
	}
	b.WriteString("  ")
	b.WriteString(highlightStyle.Render(m.status))
	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m Model) renderProcesses() string {
	var b strings.Builder
	b.WriteString(subtitleStyle.Render("Processes"))
	b.WriteString("\n\n")

	if len(m.procs) == 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("No '%s' running", m.name)))
		return b.String()
	}

	for i, proc := range m.procs {
		if i == m.selected {
			b.WriteString(cursorStyle.Render("▸ "))
			b.WriteString(selectedStyle.Render(proc.DisplayName()))
		} else {
			b.WriteString("  ")
			b.WriteString(proc.DisplayName())
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderCPUs() string {
	var b strings.Builder
	b.WriteString(subtitleStyle.Render("CPUs"))
	b.WriteString("\n\n")

	if len(m.checked) == 0 {
		b.WriteString(dimStyle.Render("unavailable"))
		return b.String()
	}

	var columns []string
	for start := 0; start < len(m.checked); start += cpuColumnRows {
		end := start + cpuColumnRows
		if end > len(m.checked) {
			end = len(m.checked)
		}
		var col strings.Builder
		for i := start; i < end; i++ {
			box := "[ ]"
			if m.checked[i] {
				box = coreStyle.Render("[✓]")
			}
			label := fmt.Sprintf("%s CPU %-3d", box, i)
			if m.focus == focusCPUs && i == m.cpuCursor {
				col.WriteString(cursorStyle.Render("▸ ") + selectedStyle.Render(label))
			} else {
				col.WriteString("  " + label)
			}
			if i < end-1 {
				col.WriteString("\n")
			}
		}
		columns = append(columns, col.String())
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	return b.String()
}

func (m Model) renderActions() string {
	var b strings.Builder
	b.WriteString(subtitleStyle.Render("Actions"))
	b.WriteString("\n\n")
	b.WriteString(vcpuStyle.Render("s") + " Set affinity\n")
	b.WriteString(vcpuStyle.Render("r") + " Refresh processes\n")
	b.WriteString(vcpuStyle.Render("n") + " Change process name\n")

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Single core allocation:"))
	b.WriteString("\n")
	for i, info := range m.policies {
		if i == 3 {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("Core group allocation:"))
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%s %s\n", vcpuStyle.Render(fmt.Sprintf("%d", i+1)), info.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderHelp() string {
	keyStyle := lipgloss.NewStyle().Foreground(secondaryColor)
	sepStyle := dimStyle

	if m.editing {
		return strings.Join([]string{
			keyStyle.Render("enter") + sepStyle.Render(" confirm"),
			keyStyle.Render("esc") + sepStyle.Render(" cancel"),
		}, dimStyle.Render(" • "))
	}

	parts := []string{
		keyStyle.Render("↑/↓") + sepStyle.Render(" navigate"),
		keyStyle.Render("tab") + sepStyle.Render(" switch pane"),
	}
	if m.focus == focusCPUs {
		parts = append(parts, keyStyle.Render("space")+sepStyle.Render(" toggle"))
	}
	parts = append(parts,
		keyStyle.Render("s")+sepStyle.Render(" set"),
		keyStyle.Render("1-6")+sepStyle.Render(" policy"),
		keyStyle.Render("q")+sepStyle.Render(" quit"),
	)
	return strings.Join(parts, dimStyle.Render(" • "))
}

func Run(host Host, runner *apply.Runner, name string, groupSize int) error {
	model := NewModel(host, runner, name, groupSize)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
