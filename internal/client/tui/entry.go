package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type entryState struct {
	input textinput.Model
	error string
}

func (m model) initEntry() model {
	ti := textinput.New()
	ti.Placeholder = "Your display name..."
	ti.Focus()
	ti.CharLimit = 32
	ti.Width = 40
	ti.PromptStyle = m.theme.TextBrand()
	ti.TextStyle = m.theme.TextAccent()
	ti.PlaceholderStyle = m.theme.TextMuted()

	m.state.entry = entryState{input: ti}
	return m
}

func (m model) EntrySwitch() (model, tea.Cmd) {
	m = m.SwitchPage(entryPage)
	m = m.initEntry()
	return m, textinput.Blink
}

func (m model) EntryUpdate(msg tea.Msg) (model, tea.Cmd) {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		if key.Matches(msg, keys.Enter) {
			name := strings.TrimSpace(m.state.entry.input.Value())
			if name == "" {
				m.state.entry.error = "Display name cannot be empty"
				return m, nil
			}

			if err := m.identity.Set(name); err != nil {
				m.state.entry.error = "Failed to save display name"
				return m, nil
			}

			m.username = name
			m = m.SwitchPage(menuPage)
			return m.initMenu(), nil
		}
	}

	m.state.entry.input, cmd = m.state.entry.input.Update(msg)
	return m, cmd
}

func (m model) EntryView() string {
	s := m.state.entry

	sections := []string{
		m.theme.TextBrand().Bold(true).Render("Welcome"),
		"",
		m.theme.TextBody().Render("Pick the name other participants will see."),
		"",
		s.input.View(),
	}

	if s.error != "" {
		sections = append(sections, "", m.theme.TextError().Render("⚠ "+s.error))
	}

	sections = append(sections, "", m.theme.TextMuted().Render("Press Enter to continue • Ctrl+C to quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
