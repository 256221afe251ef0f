package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcameron/huddle/internal/client/session"
	"github.com/pcameron/huddle/internal/client/transport"
	"github.com/pcameron/huddle/internal/domain"
)

type chatState struct {
	ctrl  *session.Controller
	input textinput.Model
	snap  session.Snapshot
	error string
}

type sessionUpdateMsg struct {
	ctrl *session.Controller
}

// waitForSessionUpdate blocks on the controller's coalesced update channel
// and turns each signal into a message for the update loop.
func waitForSessionUpdate(ctrl *session.Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctrl.Updates()
		return sessionUpdateMsg{ctrl: ctrl}
	}
}

func (m model) ChatSwitch(roomCode string) (model, tea.Cmd) {
	ctrl, err := session.New(session.Config{
		RoomCode:  roomCode,
		Endpoint:  m.baseURL + "/ws",
		Directory: m.directory,
		Dialer:    transport.NewDialer(),
		Identity:  m.identity,
	})
	if err != nil {
		return m.MenuSwitch()
	}

	if err := ctrl.Start(m.context); err != nil {
		if err == session.ErrNoIdentity {
			return m.EntrySwitch()
		}
		m, cmd := m.JoinRoomSwitch()
		m.state.joinRoom.error = err.Error()
		return m, cmd
	}

	ti := textinput.New()
	ti.Placeholder = "Say something..."
	ti.Focus()
	ti.CharLimit = 512
	ti.PromptStyle = m.theme.TextBrand()
	ti.TextStyle = m.theme.TextAccent()
	ti.PlaceholderStyle = m.theme.TextMuted()

	m = m.SwitchPage(chatPage)
	m.state.chat = chatState{
		ctrl:  ctrl,
		input: ti,
		snap:  ctrl.Snapshot(),
	}

	return m, tea.Batch(textinput.Blink, waitForSessionUpdate(ctrl))
}

func (m model) ChatUpdate(msg tea.Msg) (model, tea.Cmd) {
	s := &m.state.chat

	switch msg := msg.(type) {
	case sessionUpdateMsg:
		if msg.ctrl != s.ctrl {
			// Signal from a previous room visit; the controller is gone.
			return m, nil
		}
		s.snap = s.ctrl.Snapshot()
		if s.snap.State == session.Closed {
			return m, nil
		}
		return m, waitForSessionUpdate(s.ctrl)

	case tea.KeyMsg:
		if key.Matches(msg, keys.Back) {
			if s.ctrl != nil {
				s.ctrl.Close()
			}
			m.state.chat = chatState{}
			return m.MenuSwitch()
		}
		if key.Matches(msg, keys.Enter) {
			if s.ctrl != nil {
				s.ctrl.Send(s.input.Value())
			}
			s.input.Reset()
			return m, nil
		}
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return m, cmd
}

func (m model) ChatView() string {
	s := m.state.chat
	snap := s.snap

	header := lipgloss.JoinHorizontal(
		lipgloss.Center,
		m.theme.TextBrand().Bold(true).Render("Room "+snap.RoomCode),
		m.theme.TextMuted().Render(fmt.Sprintf("  %s • %d online", snap.State, snap.UserCount)),
	)

	footer := s.input.View()
	if snap.State != session.Active {
		switch snap.State {
		case session.Connecting:
			footer = m.theme.TextMuted().Render("Connecting to the room...")
		case session.Failed:
			footer = m.theme.TextError().Render("Connection failed. Esc to go back.")
		case session.Closed:
			footer = m.theme.TextMuted().Render("Session closed. Esc to go back.")
		}
	}

	rosterWidth := 0
	var roster string
	if m.size >= medium {
		rosterWidth = 20
		names := make([]string, 0, len(snap.Roster)+1)
		names = append(names, m.theme.TextAccent().Bold(true).Render("Participants"))
		for _, entry := range snap.Roster {
			label := entry.Username
			if entry.Username == snap.LocalUser {
				label += " (you)"
			}
			names = append(names, m.theme.TextBody().Render(label))
		}
		roster = m.theme.Panel().
			Width(rosterWidth - 2).
			Height(m.viewportHeight - 4).
			Render(lipgloss.JoinVertical(lipgloss.Left, names...))
	}

	logWidth := m.viewportWidth - rosterWidth - 2
	logHeight := m.viewportHeight - 4
	if logHeight < 1 {
		logHeight = 1
	}

	lines := make([]string, 0, len(snap.Events))
	for _, event := range snap.Events {
		lines = append(lines, m.renderEvent(event, logWidth))
	}
	if len(lines) > logHeight {
		lines = lines[len(lines)-logHeight:]
	}

	log := lipgloss.NewStyle().
		Width(logWidth).
		Height(logHeight).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	body := log
	if roster != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, log, roster)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		body,
		"",
		footer,
	)
}

func (m model) renderEvent(event domain.ChatEvent, width int) string {
	switch event.Kind {
	case domain.KindJoin:
		return m.theme.TextMuted().Render(event.Sender + " joined the chat")
	case domain.KindLeave:
		return m.theme.TextMuted().Render(event.Sender + " left the chat")
	}

	var b strings.Builder
	if clock := domain.FormatClock(event.OccurredAt); clock != "" {
		b.WriteString(m.theme.TextMuted().Render("[" + clock + "] "))
	}

	name := m.theme.TextHighlight().Render(event.Sender)
	if event.Sender == m.username {
		name = m.theme.TextBrand().Bold(true).Render(event.Sender)
	}
	b.WriteString(name)
	b.WriteString(m.theme.TextBody().Render(": " + event.Body))

	line := b.String()
	if width > 0 {
		line = lipgloss.NewStyle().Width(width).Render(line)
	}
	return line
}
