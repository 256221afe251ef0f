package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcameron/huddle/internal/client/identity"
	"github.com/pcameron/huddle/internal/client/tui"
	"github.com/pcameron/huddle/internal/infrastructure/env"
)

func main() {
	log, err := os.Create("output.log")
	if err != nil {
		panic(err)
	}
	defer log.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(log, &slog.HandlerOptions{})))

	baseURL := env.GetString("HUDDLE_BASE_URL", "http://localhost:8080")

	store := identity.NewFileStore()

	model, err := tui.NewModel(lipgloss.DefaultRenderer(), baseURL, store)
	if err != nil {
		panic(err)
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
