package helper

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	QueryColor  = lipgloss.Color("3")
	ResultColor = lipgloss.Color("2")
)

// Panel renders body in a rounded box with a bold title line.
func Panel(title, body string, color lipgloss.Color) string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(color).Render(title)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Render(heading + "\n\n" + body)
}
