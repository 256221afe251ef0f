package theme

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	renderer *lipgloss.Renderer

	border    lipgloss.TerminalColor
	highlight lipgloss.TerminalColor
	brand     lipgloss.TerminalColor
	error     lipgloss.TerminalColor
	body      lipgloss.TerminalColor
	accent    lipgloss.TerminalColor
	muted     lipgloss.TerminalColor

	base lipgloss.Style
}

func BasicTheme(renderer *lipgloss.Renderer) Theme {
	base := Theme{
		renderer: renderer,
	}

	base.border = lipgloss.AdaptiveColor{Dark: "#2D3748", Light: "#CBD5E0"}
	base.body = lipgloss.AdaptiveColor{Dark: "#94A3B8", Light: "#64748B"}
	base.accent = lipgloss.AdaptiveColor{Dark: "#F1F5F9", Light: "#0F172A"}
	base.muted = lipgloss.AdaptiveColor{Dark: "#4A5568", Light: "#A0AEC0"}
	base.brand = lipgloss.Color("#3B82F6") // Blue
	base.highlight = base.brand
	base.error = lipgloss.Color("#EF4444") // Red

	base.base = renderer.NewStyle().Foreground(base.body)

	return base
}

func (b Theme) Base() lipgloss.Style {
	return b.base
}

func (b Theme) Border() lipgloss.TerminalColor {
	return b.border
}

func (b Theme) TextBody() lipgloss.Style {
	return b.Base().Foreground(b.body)
}

func (b Theme) TextAccent() lipgloss.Style {
	return b.Base().Foreground(b.accent)
}

func (b Theme) TextHighlight() lipgloss.Style {
	return b.Base().Foreground(b.highlight)
}

func (b Theme) TextBrand() lipgloss.Style {
	return b.Base().Foreground(b.brand)
}

func (b Theme) TextError() lipgloss.Style {
	return b.Base().Foreground(b.error)
}

func (b Theme) TextMuted() lipgloss.Style {
	return b.Base().Foreground(b.muted)
}

func (b Theme) Panel() lipgloss.Style {
	return b.Base().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(b.border).
		Padding(0, 1)
}
