package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type newRoomState struct {
	creating bool
	error    string
}

type roomCreatedMsg struct {
	code string
}

type roomCreateFailedMsg struct {
	err error
}

func (m model) NewRoomSwitch() (model, tea.Cmd) {
	m = m.SwitchPage(newRoomPage)
	m.state.newRoom = newRoomState{creating: true}

	ctx := m.context
	dir := m.directory
	host := m.username
	return m, func() tea.Msg {
		code, err := dir.Create(ctx, host)
		if err != nil {
			return roomCreateFailedMsg{err: err}
		}
		return roomCreatedMsg{code: code}
	}
}

func (m model) NewRoomUpdate(msg tea.Msg) (model, tea.Cmd) {
	switch msg := msg.(type) {
	case roomCreatedMsg:
		return m.ChatSwitch(msg.code)
	case roomCreateFailedMsg:
		m.state.newRoom.creating = false
		m.state.newRoom.error = msg.err.Error()
	case tea.KeyMsg:
		if msg.String() == "esc" {
			return m.MenuSwitch()
		}
	}

	return m, nil
}

func (m model) NewRoomView() string {
	s := m.state.newRoom

	sections := []string{
		m.theme.TextBrand().Bold(true).Render("New room"),
		"",
	}

	switch {
	case s.creating:
		sections = append(sections, m.theme.TextBody().Render("Creating room..."))
	case s.error != "":
		sections = append(sections,
			m.theme.TextError().Render("⚠ "+s.error),
			"",
			m.theme.TextMuted().Render("Esc to go back"),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
