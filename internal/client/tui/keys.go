package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit key.Binding
	Back key.Binding

	NewRoomPage  key.Binding
	JoinRoomPage key.Binding

	Enter key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back/leave"),
	),

	NewRoomPage: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new room"),
	),
	JoinRoomPage: key.NewBinding(
		key.WithKeys("j"),
		key.WithHelp("j", "join room"),
	),

	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
}
