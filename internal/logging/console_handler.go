package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-oriented line per record:
//
//	2026-01-02 15:04:05 INF detector job-7/enhance | stage completed outcome=advanced
//
// Component, job and stage attributes are lifted into the line header; every
// other attribute trails the message as key=value.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	addSource bool

	// preset holds attributes bound through WithAttrs, already flattened.
	preset []field
	group  string
}

type field struct {
	key   string
	value slog.Value
}

// header collects the attributes rendered before the message.
type header struct {
	component string
	jobID     string
	stage     string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.group, attr)
		return true
	})
	head, rest := splitHeader(fields)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(ts.Local().Format(time.DateTime))
	b.WriteByte(' ')
	b.WriteString(shortLevel(record.Level))
	for _, part := range []string{head.component, head.subject()} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	b.WriteString(" | ")
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "-"
	}
	b.WriteString(msg)

	for _, f := range rest {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(renderValue(f.value))
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append([]field(nil), h.preset...)
	for _, attr := range attrs {
		next.preset = appendField(next.preset, h.group, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

func (hd header) subject() string {
	switch {
	case hd.jobID != "" && hd.stage != "":
		return hd.jobID + "/" + hd.stage
	case hd.jobID != "":
		return hd.jobID
	default:
		return hd.stage
	}
}

// splitHeader pulls the header attributes out of fields. The first component
// wins; job and stage take the most recent value.
func splitHeader(fields []field) (header, []field) {
	var hd header
	rest := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			if hd.component == "" {
				hd.component = plainString(f.value)
			}
		case FieldJobID:
			hd.jobID = plainString(f.value)
		case FieldStage:
			hd.stage = plainString(f.value)
		default:
			rest = append(rest, f)
		}
	}
	return hd, rest
}

func appendField(dst []field, group string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := group
		if attr.Key != "" {
			inner = joinKey(group, attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, inner, member)
		}
		return dst
	}
	return append(dst, field{key: joinKey(group, attr.Key), value: attr.Value})
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func plainString(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return renderValue(v)
}

func renderValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func shortLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}
