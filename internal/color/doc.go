// Package color provides the terminal styles of the scribble CLI.
//
// Colors are adaptive: each has a light and a dark variant and lipgloss
// picks one based on the detected terminal background, which Initialize
// overrides. Output to terminals without color support, or with NO_COLOR
// set, falls back to plain text.
//
// # Usage Example
//
//	fmt.Print(color.TitleStyle.Render("Fixtures"))
//	fmt.Print(color.Columns([][]string{
//	    {"site", "httpServer", "http://localhost:8080"},
//	    {"tools", "mcpServer", "http://localhost:8081/sse"},
//	}, color.SuccessStyle, color.MutedStyle))
//
// Columns measures cell widths with go-runewidth so icons and CJK text line
// up.
package color
