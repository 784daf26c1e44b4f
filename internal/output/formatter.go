package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ColorsEnabled reports whether stdout is a terminal. Callers pass the result
// to the renderer so piped output stays plain.
func ColorsEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// ColorHash colors a short commit id
func ColorHash(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("3")).
		Render(text)
}

// ColorCurrent colors the checked-out commit's line
func ColorCurrent(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("6")).
		Render(text)
}

// ColorObsolete dims superseded commits
func ColorObsolete(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Strikethrough(true).
		Render(text)
}

// ColorDim makes text dim/gray
func ColorDim(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(text)
}

// ColorWarning colors warning annotations
func ColorWarning(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("3")).
		Render(text)
}

// ColorBranch colors branch name annotations
func ColorBranch(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Render(text)
}
