// Package ui is the leader's terminal control surface: a vertical
// slider driven by keys and the mouse wheel.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hoppxi/glint/internal/brightness"
)

const (
	defaultHeight = 12
	minHeight     = 3
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.PageUp, k.PageDown, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.PageUp, k.PageDown}, {k.Top, k.Bottom, k.Quit}}
}

var defaultKeys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k", "+"), key.WithHelp("↑/k", "brighter")),
	Down:     key.NewBinding(key.WithKeys("down", "j", "-"), key.WithHelp("↓/j", "dimmer")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "much brighter")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "much dimmer")),
	Top:      key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "100%")),
	Bottom:   key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "0%")),
	Quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	filledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
	faultStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	frameStyle  = lipgloss.NewStyle().Padding(1, 2)
)

type Options struct {
	Cell   *brightness.Cell
	Device string
	// Steps returns the small and page deltas; read on every key so
	// config reloads apply immediately.
	Steps  func() (step, page int)
	Faults <-chan error
	// Fault is the writer's state when the surface starts.
	Fault error
}

type levelMsg brightness.Percent

type faultMsg struct{ err error }

// Model implements tea.Model.
type Model struct {
	opts   Options
	levels <-chan brightness.Percent
	keys   keyMap
	help   help.Model

	level  brightness.Percent
	fault  error
	height int
}

// NewModel follows opts.Cell until ctx ends.
func NewModel(ctx context.Context, opts Options) Model {
	return Model{
		opts:   opts,
		levels: opts.Cell.Watch(ctx),
		keys:   defaultKeys,
		help:   help.New(),
		level:  opts.Cell.Get(),
		fault:  opts.Fault,
		height: defaultHeight,
	}
}

func waitLevel(levels <-chan brightness.Percent) tea.Cmd {
	return func() tea.Msg {
		level, ok := <-levels
		if !ok {
			return nil
		}
		return levelMsg(level)
	}
}

func waitFault(faults <-chan error) tea.Cmd {
	if faults == nil {
		return nil
	}
	return func() tea.Msg {
		err, ok := <-faults
		if !ok {
			return nil
		}
		return faultMsg{err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitLevel(m.levels), waitFault(m.opts.Faults))
}

func (m Model) adjust(delta int) {
	m.opts.Cell.Replace(func(b brightness.Percent) int {
		return int(brightness.Apply(b, delta))
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	step, page := m.opts.Steps()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.adjust(step)
		case key.Matches(msg, m.keys.Down):
			m.adjust(-step)
		case key.Matches(msg, m.keys.PageUp):
			m.adjust(page)
		case key.Matches(msg, m.keys.PageDown):
			m.adjust(-page)
		case key.Matches(msg, m.keys.Top):
			m.opts.Cell.Set(int(brightness.Max))
		case key.Matches(msg, m.keys.Bottom):
			m.opts.Cell.Set(int(brightness.Min))
		}
		return m, nil

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			return m, nil
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.adjust(step)
		case tea.MouseButtonWheelDown:
			m.adjust(-step)
		}
		return m, nil

	case tea.WindowSizeMsg:
		// Leave room for the label, help line and padding.
		m.height = max(minHeight, min(defaultHeight*2, msg.Height-6))
		return m, nil

	case levelMsg:
		m.level = brightness.Percent(msg)
		return m, waitLevel(m.levels)

	case faultMsg:
		m.fault = msg.err
		return m, waitFault(m.opts.Faults)
	}
	return m, nil
}

// filledRows is how many of height rows are lit at level.
func filledRows(level brightness.Percent, height int) int {
	return (int(level)*height + 50) / 100
}

func (m Model) View() string {
	lit := filledRows(m.level, m.height)

	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("%3d%%", m.level)))
	b.WriteString("\n")
	for row := m.height; row >= 1; row-- {
		if row <= lit {
			b.WriteString(filledStyle.Render(" ██ "))
		} else {
			b.WriteString(emptyStyle.Render(" ░░ "))
		}
		b.WriteString("\n")
	}
	if m.opts.Device != "" {
		b.WriteString(emptyStyle.Render(m.opts.Device))
		b.WriteString("\n")
	}
	if m.fault != nil {
		b.WriteString(faultStyle.Render("hardware unavailable: " + m.fault.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))

	return frameStyle.Render(b.String())
}

// Run shows the surface until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	program := tea.NewProgram(
		NewModel(ctx, opts),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("control surface: %w", err)
	}
	return nil
}
