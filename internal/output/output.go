// Package output prints the human-facing startup and shutdown messages of the
// archive server. Request-level events go through the structured logger; this
// package is only for what an operator reads in the terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

// Writer prints styled lines to a terminal, falling back to plain text when
// the target is not a terminal, runs under CI or NO_COLOR is set.
type Writer struct {
	w     io.Writer
	color bool
}

// KeyValue is one row of Result output.
type KeyValue struct {
	Key   string
	Value string
}

var (
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	infoStyle    = lipgloss.NewStyle().Faint(true)
	keyStyle     = lipgloss.NewStyle().Bold(true)
)

// getenv allows tests to replace the environment.
var getenv = os.Getenv

// New creates a Writer on stderr.
func New() *Writer {
	return NewWriter(os.Stderr)
}

// NewWriter creates a Writer targeting w. Color is enabled only when w is a
// terminal.
func NewWriter(w io.Writer) *Writer {
	isTerm := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		isTerm = term.IsTerminal(int(f.Fd()))
	}
	return &Writer{w: w, color: isTerm && colorAllowed()}
}

// NewTest creates a Writer that never emits escape sequences.
func NewTest(w io.Writer) *Writer {
	return &Writer{w: w}
}

func colorAllowed() bool {
	return getenv("CI") == "" && getenv("NO_COLOR") == ""
}

// Color reports whether styled output is enabled.
func (w *Writer) Color() bool {
	return w.color
}

func (w *Writer) prefixed(style lipgloss.Style, prefix, format string, args []interface{}) {
	if w.color {
		prefix = style.Render(prefix)
	}
	fmt.Fprintf(w.w, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Step prints "-> message".
func (w *Writer) Step(format string, args ...interface{}) {
	w.prefixed(stepStyle, "->", format, args)
}

// Success prints "OK message".
func (w *Writer) Success(format string, args ...interface{}) {
	w.prefixed(successStyle, "OK", format, args)
}

// Warning prints "WARNING message".
func (w *Writer) Warning(format string, args ...interface{}) {
	w.prefixed(warningStyle, "WARNING", format, args)
}

// Error prints "ERROR message".
func (w *Writer) Error(format string, args ...interface{}) {
	w.prefixed(errorStyle, "ERROR", format, args)
}

// Info prints an indented, dimmed line under a step.
func (w *Writer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		msg = infoStyle.Render(msg)
	}
	fmt.Fprintf(w.w, "   %s\n", msg)
}

// Result prints key-value pairs with the values aligned.
func (w *Writer) Result(pairs []KeyValue) {
	if len(pairs) == 0 {
		return
	}

	width := 0
	for _, p := range pairs {
		width = max(width, len(p.Key))
	}

	fmt.Fprintln(w.w)
	for _, p := range pairs {
		key := p.Key
		if w.color {
			key = keyStyle.Render(key)
		}
		fmt.Fprintf(w.w, "  %s%s  %s\n", key, strings.Repeat(" ", width-len(p.Key)), p.Value)
	}
}

// Table renders rows under headers without borders.
func (w *Writer) Table(headers []string, rows [][]string) {
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		BorderRow(false).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false)

	if w.color {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return stepStyle.Bold(true)
			}
			return lipgloss.NewStyle()
		})
	}

	fmt.Fprintln(w.w, t.Render())
}

// Println prints a plain line.
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.w, format+"\n", args...)
}
