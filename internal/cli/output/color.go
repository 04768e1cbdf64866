package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Color is an ANSI foreground color.
type Color int

// Colors used for envelope kinds and outcomes.
const (
	ColorRed     Color = 31
	ColorGreen   Color = 32
	ColorYellow  Color = 33
	ColorBlue    Color = 34
	ColorMagenta Color = 35
	ColorCyan    Color = 36
)

// ColorMode selects when output is colored.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Palette paints strings when enabled and returns them unchanged otherwise.
type Palette struct {
	enabled bool
}

// NewPalette returns a palette for f. In auto mode colors are enabled only
// when f is a terminal and NO_COLOR is unset.
func NewPalette(f *os.File, mode ColorMode) Palette {
	switch mode {
	case ColorAlways:
		return Palette{enabled: true}
	case ColorNever:
		return Palette{}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok || f == nil {
		return Palette{}
	}
	fd := f.Fd()
	return Palette{enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

// Enabled reports whether the palette emits escape sequences.
func (p Palette) Enabled() bool {
	return p.enabled
}

// Paint wraps s in the escape sequence for c.
func (p Palette) Paint(c Color, s string) string {
	if !p.enabled {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}

// Stdout returns a writer for os.Stdout that translates escape sequences on
// consoles that do not support them.
func Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

// Stderr is like Stdout for os.Stderr.
func Stderr() io.Writer {
	return colorable.NewColorableStderr()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
