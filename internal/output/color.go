package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme provides color functions for different output elements
type ColorScheme struct {
	// Name colors item and resource names
	Name func(a ...any) string

	// Custom marks custom resource types
	Custom func(a ...any) string

	// Header colors table headers
	Header func(a ...any) string

	// Muted colors secondary values such as ages
	Muted func(a ...any) string

	// Disabled indicates if colors are disabled
	Disabled bool
}

// NewColorScheme creates a new color scheme.
// Colors are disabled for non-TTY outputs or when noColor is true.
func NewColorScheme(w io.Writer, noColor bool) *ColorScheme {
	if noColor || !isTTY(w) {
		return &ColorScheme{
			Name:     fmt.Sprint,
			Custom:   fmt.Sprint,
			Header:   fmt.Sprint,
			Muted:    fmt.Sprint,
			Disabled: true,
		}
	}

	return &ColorScheme{
		Name:   sprint(color.FgCyan, color.Bold),
		Custom: sprint(color.FgYellow),
		Header: sprint(color.FgWhite, color.Bold),
		Muted:  sprint(color.FgBlue),
	}
}

// sprint forces color on, the writer was already checked to be a terminal.
func sprint(attrs ...color.Attribute) func(a ...any) string {
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint
}

// isTTY checks if the writer is a TTY
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}
