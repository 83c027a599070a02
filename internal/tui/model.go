// Package tui is the terminal host for the booking calendar.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookcal/internal/booking"
	"bookcal/internal/model"
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Toggle key.Binding
	Next   key.Binding
	Prev   key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Prev, k.Next, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Toggle, k.Prev, k.Next},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "earlier")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "later")),
	Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev day")),
	Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next day")),
	Toggle: key.NewBinding(key.WithKeys(" ", "space", "enter"), key.WithHelp("space", "book/unbook")),
	Next:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next week")),
	Prev:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "prev week")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headStyle   = lipgloss.NewStyle().Bold(true)
	bookedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	closedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// toggledMsg carries the result of a toggle back into Update.
type toggledMsg struct {
	cell booking.Cell
	err  error
}

// Model is the bubbletea model over one scheduler session.
type Model struct {
	ctx   context.Context
	sched *booking.Scheduler
	grid  booking.Grid
	day   int
	row   int

	status string
	err    error
	help   help.Model
}

// New renders the current week and places the cursor on its first slot.
func New(ctx context.Context, sched *booking.Scheduler) Model {
	return Model{
		ctx:   ctx,
		sched: sched,
		grid:  sched.Grid(ctx),
		help:  help.New(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Cursor is the selected (day, row).
func (m Model) Cursor() (int, int) {
	return m.day, m.row
}

// Grid is the week currently shown.
func (m Model) Grid() booking.Grid {
	return m.grid
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case toggledMsg:
		return m.applyToggle(msg), nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.row > 0 {
			m.row--
		}
	case key.Matches(msg, keys.Down):
		if m.row < len(m.grid.Rows)-1 {
			m.row++
		}
	case key.Matches(msg, keys.Left):
		if m.day > 0 {
			m.day--
		}
	case key.Matches(msg, keys.Right):
		if m.day < model.DaysPerWeek-1 {
			m.day++
		}
	case key.Matches(msg, keys.Next):
		m.grid = m.sched.Next(m.ctx)
		m.status, m.err = "", nil
	case key.Matches(msg, keys.Prev):
		m.grid = m.sched.Prev(m.ctx)
		m.status, m.err = "", nil
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Toggle):
		return m, m.toggle()
	}
	return m, nil
}

func (m Model) toggle() tea.Cmd {
	ctx, sched, offset, day, row := m.ctx, m.sched, m.grid.Offset, m.day, m.row
	return func() tea.Msg {
		cell, err := sched.ToggleAt(ctx, offset, day, row)
		return toggledMsg{cell: cell, err: err}
	}
}

func (m Model) applyToggle(msg toggledMsg) Model {
	if msg.err != nil {
		m.err = msg.err
		if errors.Is(msg.err, booking.ErrClosed) {
			m.err = errors.New("closed on that day")
		}
		m.status = ""
		return m
	}
	m.err = nil
	verb := "freed"
	if msg.cell.Booked {
		verb = "booked"
	}
	m.status = fmt.Sprintf("%s %s %s", verb, msg.cell.Date, msg.cell.Time)
	m.grid = m.sched.View(m.ctx, m.grid.Offset)
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Week of "+m.grid.Week) + "\n\n")

	b.WriteString("      ")
	for _, d := range m.grid.Days {
		label := fmt.Sprintf(" %-5s", d.Weekday)
		if d.Closed {
			label = closedStyle.Render(label)
		} else {
			label = headStyle.Render(label)
		}
		b.WriteString(label)
	}
	b.WriteString("\n")

	for _, r := range m.grid.Rows {
		b.WriteString(r.Label + " ")
		for _, c := range r.Cells {
			b.WriteString(" " + m.renderCell(c))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render(m.err.Error()))
	case m.status != "":
		b.WriteString(m.status)
	}
	b.WriteString("\n" + m.help.View(keys))
	return b.String()
}

func (m Model) renderCell(c booking.Cell) string {
	text := "[   ]"
	style := lipgloss.NewStyle()
	switch {
	case c.Closed:
		text, style = "  -  ", closedStyle
	case c.Booked:
		text, style = "[ x ]", bookedStyle
	}
	if c.Day == m.day && c.Row == m.row {
		style = style.Inherit(cursorStyle)
	}
	return style.Render(text)
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(ctx context.Context, sched *booking.Scheduler) error {
	_, err := tea.NewProgram(New(ctx, sched), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
