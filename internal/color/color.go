package color

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	Primary = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	Success = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	Error   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	Muted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

var (
	TitleStyle   = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
)

// Initialize selects the dark or light variant of the adaptive colors.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// SafeIcon appends one space to a narrow icon and two to a wide one so the
// icon never swallows the following character.
func SafeIcon(icon string) string {
	spaces := 1
	if runewidth.StringWidth(icon) >= 2 {
		spaces = 2
	}
	return icon + strings.Repeat(" ", spaces)
}

// Columns renders rows as left aligned columns separated by two spaces.
// Widths are measured in terminal cells, so wide runes line up. Styles are
// applied per column after padding.
func Columns(rows [][]string, styles ...lipgloss.Style) string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i < len(row)-1 {
				cell = runewidth.FillRight(cell, widths[i]+2)
			}
			if i < len(styles) {
				cell = styles[i].Render(cell)
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}
