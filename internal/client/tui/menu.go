package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type menuState struct {
	cursor int
}

var menuEntries = []string{
	"New room",
	"Join room",
}

func (m model) initMenu() model {
	m.state.menu = menuState{}
	return m
}

func (m model) MenuSwitch() (model, tea.Cmd) {
	m = m.SwitchPage(menuPage)
	return m.initMenu(), nil
}

func (m model) MenuUpdate(msg tea.Msg) (model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.NewRoomPage):
			return m.NewRoomSwitch()
		case key.Matches(msg, keys.JoinRoomPage):
			return m.JoinRoomSwitch()
		case key.Matches(msg, keys.Enter):
			if m.state.menu.cursor == 0 {
				return m.NewRoomSwitch()
			}
			return m.JoinRoomSwitch()
		default:
			switch msg.String() {
			case "up", "k":
				if m.state.menu.cursor > 0 {
					m.state.menu.cursor--
				}
			case "down":
				if m.state.menu.cursor < len(menuEntries)-1 {
					m.state.menu.cursor++
				}
			}
		}
	}

	return m, nil
}

func (m model) MenuView() string {
	sections := []string{
		m.theme.TextBrand().Bold(true).Render("Huddle"),
		"",
		m.theme.TextBody().Render("Hi " + m.username + "."),
		"",
	}

	for i, entry := range menuEntries {
		line := "  " + entry
		if i == m.state.menu.cursor {
			line = m.theme.TextHighlight().Render("> " + entry)
		}
		sections = append(sections, line)
	}

	sections = append(sections, "", m.theme.TextMuted().Render("n new • j join • Enter select • Ctrl+C quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
