// Package tui holds the terminal views of agentpack: the interactive
// install picker and the styled build summary.
//
// The picker follows The Elm Architecture used by bubbletea: key messages
// update the model, View renders it.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/agentpack/internal/build"
)

// ErrCancelled is returned by Pick when the user leaves without confirming.
var ErrCancelled = errors.New("tui: selection cancelled")

// Option is one selectable install target.
type Option struct {
	Target      build.Target
	Title       string
	Description string
}

type optionItem struct {
	option   Option
	selected bool
}

func (i optionItem) Title() string {
	mark := "[ ]"
	if i.selected {
		mark = "[x]"
	}
	return mark + " " + i.option.Title
}

func (i optionItem) Description() string { return i.option.Description }
func (i optionItem) FilterValue() string { return i.option.Target.String() }

// Picker is a multi-select list. Space toggles the highlighted entry, "a"
// toggles every entry, enter confirms and esc or q cancels.
type Picker struct {
	list      list.Model
	items     []optionItem
	confirmed bool
	cancelled bool
	statusMsg string
}

// NewPicker returns a picker over options, none selected.
func NewPicker(title string, options []Option) *Picker {
	items := make([]optionItem, len(options))
	listItems := make([]list.Item, len(options))
	for i, opt := range options {
		items[i] = optionItem{option: opt}
		listItems[i] = items[i]
	}
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	l := list.New(listItems, delegate, 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return &Picker{list: l, items: items}
}

// Init implements tea.Model.
func (p *Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 4
		if height < 5 {
			height = msg.Height
		}
		p.list.SetSize(msg.Width, height)
		return p, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			p.cancelled = true
			return p, tea.Quit
		case " ", "space":
			p.toggle(p.list.Index())
			return p, nil
		case "a":
			all := !p.allSelected()
			for i := range p.items {
				if p.items[i].selected != all {
					p.toggle(i)
				}
			}
			return p, nil
		case "enter":
			if len(p.Selected()) == 0 {
				p.statusMsg = "Select at least one entry with space."
				return p, nil
			}
			p.confirmed = true
			return p, tea.Quit
		}
	}

	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

func (p *Picker) toggle(i int) {
	if i < 0 || i >= len(p.items) {
		return
	}
	p.items[i].selected = !p.items[i].selected
	p.list.SetItem(i, p.items[i])
	p.statusMsg = fmt.Sprintf("%d selected", len(p.Selected()))
}

func (p *Picker) allSelected() bool {
	for _, item := range p.items {
		if !item.selected {
			return false
		}
	}
	return len(p.items) > 0
}

// Selected returns the selected targets in list order.
func (p *Picker) Selected() []build.Target {
	var out []build.Target
	for _, item := range p.items {
		if item.selected {
			out = append(out, item.option.Target)
		}
	}
	return out
}

// Confirmed reports whether the user pressed enter with a selection.
func (p *Picker) Confirmed() bool {
	return p.confirmed && !p.cancelled
}

// View implements tea.Model.
func (p *Picker) View() string {
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Space → toggle    a → all    Enter → install    Esc → cancel")
	status := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(p.statusMsg)
	return strings.TrimRight(lipgloss.JoinVertical(lipgloss.Left, p.list.View(), hint, status), "\n")
}

// Pick runs a picker until the user confirms or cancels.
func Pick(title string, options []Option, opts ...tea.ProgramOption) ([]build.Target, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("tui: nothing to pick from")
	}
	picker := NewPicker(title, options)
	final, err := tea.NewProgram(picker, opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	result, ok := final.(*Picker)
	if !ok || !result.Confirmed() {
		return nil, ErrCancelled
	}
	return result.Selected(), nil
}
