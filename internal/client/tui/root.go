package tui

import (
	"context"
	"math"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcameron/huddle/internal/client/directory"
	"github.com/pcameron/huddle/internal/client/identity"
	"github.com/pcameron/huddle/internal/client/tui/theme"
)

type page = int
type size = int

const (
	entryPage page = iota
	menuPage
	newRoomPage
	joinRoomPage
	chatPage
)

const (
	undersized size = iota
	small
	medium
	large
)

type state struct {
	entry    entryState
	menu     menuState
	newRoom  newRoomState
	joinRoom joinRoomState
	chat     chatState
}

type model struct {
	renderer *lipgloss.Renderer
	page     page
	state    state
	context  context.Context
	theme    theme.Theme

	baseURL   string
	directory *directory.Client
	identity  identity.Store
	username  string

	viewportWidth   int
	viewportHeight  int
	widthContainer  int
	heightContainer int
	widthContent    int
	heightContent   int
	size            size
}

func NewModel(renderer *lipgloss.Renderer, baseURL string, store identity.Store) (tea.Model, error) {
	m := model{
		context:   context.Background(),
		renderer:  renderer,
		theme:     theme.BasicTheme(renderer),
		baseURL:   baseURL,
		directory: directory.NewClient(baseURL),
		identity:  store,
	}

	if name, ok := store.Get(); ok {
		m.username = name
		m.page = menuPage
		m = m.initMenu()
	} else {
		m.page = entryPage
		m = m.initEntry()
	}

	return m, nil
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewportWidth = msg.Width
		m.viewportHeight = msg.Height

		switch {
		case m.viewportWidth < 20 || m.viewportHeight < 10:
			m.size = undersized
			m.widthContainer = m.viewportWidth
			m.heightContainer = m.viewportHeight
		case m.viewportWidth < 50:
			m.size = small
			m.widthContainer = m.viewportWidth
			m.heightContainer = m.viewportHeight
		case m.viewportWidth < 80:
			m.size = medium
			m.widthContainer = 50
			m.heightContainer = int(math.Min(float64(msg.Height), 30))
		default:
			m.size = large
			m.widthContainer = 80
			m.heightContainer = int(math.Min(float64(msg.Height), 30))
		}

		m.widthContent = m.widthContainer - 2
		m.heightContent = m.heightContainer

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.state.chat.ctrl != nil {
				// Leave announcement goes out before the program dies.
				m.state.chat.ctrl.Close()
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	switch m.page {
	case entryPage:
		m, cmd = m.EntryUpdate(msg)
	case menuPage:
		m, cmd = m.MenuUpdate(msg)
	case newRoomPage:
		m, cmd = m.NewRoomUpdate(msg)
	case joinRoomPage:
		m, cmd = m.JoinRoomUpdate(msg)
	case chatPage:
		m, cmd = m.ChatUpdate(msg)
	}

	return m, cmd
}

func (m model) View() string {
	if m.size == undersized {
		return m.theme.TextBody().Render("Terminal too small")
	}

	var content string
	switch m.page {
	case entryPage:
		content = m.EntryView()
	case menuPage:
		content = m.MenuView()
	case newRoomPage:
		content = m.NewRoomView()
	case joinRoomPage:
		content = m.JoinRoomView()
	case chatPage:
		return m.ChatView()
	}

	return m.renderer.Place(
		m.viewportWidth,
		m.viewportHeight,
		lipgloss.Center,
		lipgloss.Center,
		m.theme.Base().
			MaxWidth(m.widthContainer).
			MaxHeight(m.heightContainer).
			Render(content),
	)
}

func (m model) SwitchPage(page page) model {
	m.page = page
	return m
}
