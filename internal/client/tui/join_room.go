package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcameron/huddle/internal/domain"
)

type joinRoomState struct {
	input   textinput.Model
	joining bool
	error   string
}

type roomJoinedMsg struct {
	code string
}

type roomJoinFailedMsg struct {
	err error
}

func (m model) JoinRoomSwitch() (model, tea.Cmd) {
	m = m.SwitchPage(joinRoomPage)

	ti := textinput.New()
	ti.Placeholder = "ABC123"
	ti.Focus()
	ti.CharLimit = 6
	ti.Width = 12
	ti.PromptStyle = m.theme.TextBrand()
	ti.TextStyle = m.theme.TextAccent()
	ti.PlaceholderStyle = m.theme.TextMuted()

	m.state.joinRoom = joinRoomState{input: ti}
	return m, textinput.Blink
}

func (m model) JoinRoomUpdate(msg tea.Msg) (model, tea.Cmd) {
	switch msg := msg.(type) {
	case roomJoinedMsg:
		return m.ChatSwitch(msg.code)
	case roomJoinFailedMsg:
		m.state.joinRoom.joining = false
		m.state.joinRoom.error = msg.err.Error()
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "esc" {
			return m.MenuSwitch()
		}
		if key.Matches(msg, keys.Enter) && !m.state.joinRoom.joining {
			code, err := domain.NormalizeRoomCode(m.state.joinRoom.input.Value())
			if err != nil {
				m.state.joinRoom.error = "Room codes are 6 letters or digits"
				return m, nil
			}

			m.state.joinRoom.joining = true
			m.state.joinRoom.error = ""

			ctx := m.context
			dir := m.directory
			username := m.username
			return m, func() tea.Msg {
				if err := dir.Join(ctx, code, username); err != nil {
					return roomJoinFailedMsg{err: err}
				}
				return roomJoinedMsg{code: code}
			}
		}
	}

	var cmd tea.Cmd
	m.state.joinRoom.input, cmd = m.state.joinRoom.input.Update(msg)
	return m, cmd
}

func (m model) JoinRoomView() string {
	s := m.state.joinRoom

	sections := []string{
		m.theme.TextBrand().Bold(true).Render("Join room"),
		"",
		m.theme.TextBody().Render("Enter the room code you were given."),
		"",
		s.input.View(),
	}

	if s.joining {
		sections = append(sections, "", m.theme.TextBody().Render("Joining..."))
	}
	if s.error != "" {
		sections = append(sections, "", m.theme.TextError().Render("⚠ "+s.error))
	}

	sections = append(sections, "", m.theme.TextMuted().Render("Enter to join • Esc to go back"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
