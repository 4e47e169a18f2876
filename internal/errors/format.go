package errors

import (
	"fmt"
	"strings"
)

// ANSI color codes for terminal output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorWhite = "\033[37m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// colorEnabled controls whether ANSI colors are used.
var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

func red(text string) string   { return color(colorRed, text) }
func cyan(text string) string  { return color(colorCyan, text) }
func white(text string) string { return color(colorWhite, text) }
func gray(text string) string  { return color(colorGray, text) }
func bold(text string) string  { return color(colorBold, text) }

// Format returns the error formatted for terminal display.
func (e *Error) Format() string {
	var b strings.Builder

	if e.Code != "" {
		b.WriteString(red(bold("ERROR ")))
		b.WriteString(white(bold(e.Code + ": ")))
	} else {
		b.WriteString(red(bold("ERROR: ")))
	}
	b.WriteString(white(e.Message))
	b.WriteString("\n")

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 70) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if e.Wrapped != nil {
		b.WriteString("  ")
		b.WriteString(cyan("Cause: "))
		b.WriteString(gray(e.Wrapped.Error()))
		b.WriteString("\n")
	}

	return b.String()
}

// FormatCompact returns a compact single-line error format.
func (e *Error) FormatCompact() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Category, e.Message)
	}
	return fmt.Sprintf("[%s]: %s", e.Category, e.Message)
}

// wrapText wraps text to the specified width.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
