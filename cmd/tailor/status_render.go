package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

var statusStyles = map[statusKind]struct {
	tag   string
	color string
}{
	statusInfo:  {"info", ansiCyan},
	statusOK:    {"ok", ansiGreen},
	statusWarn:  {"warn", ansiYellow},
	statusError: {"fail", ansiRed},
}

// statusWriter prints the sectioned report behind `tailor status`.
type statusWriter struct {
	w        io.Writer
	colorize bool
	width    int
}

func newStatusWriter(w io.Writer, colorize bool) *statusWriter {
	return &statusWriter{w: w, colorize: colorize, width: 16}
}

func (s *statusWriter) paint(kind statusKind, value string) string {
	if !s.colorize {
		return value
	}
	return statusStyles[kind].color + value + ansiReset
}

// section starts a titled block, separated from the previous one.
func (s *statusWriter) section(title string, first bool) {
	if !first {
		fmt.Fprintln(s.w)
	}
	fmt.Fprintln(s.w, s.paint(statusInfo, strings.ToUpper(title)))
}

// line prints "  label  [tag] message" with the tag colored by kind.
func (s *statusWriter) line(label string, kind statusKind, message string) {
	tag := s.paint(kind, fmt.Sprintf("%-6s", "["+statusStyles[kind].tag+"]"))
	fmt.Fprintf(s.w, "  %-*s %s %s\n", s.width, label, tag, message)
}

func (s *statusWriter) text(message string) {
	fmt.Fprintf(s.w, "  %s\n", message)
}

// jobStatusKind classifies job and stage statuses for coloring.
func jobStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	case "cancelled", "instruction_written":
		return statusWarn
	default:
		return statusInfo
	}
}

func colorStatus(status string, colorize bool) string {
	kind := jobStatusKind(status)
	if !colorize || kind == statusInfo {
		return status
	}
	return statusStyles[kind].color + status + ansiReset
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
