package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

type palette struct {
	reset     string
	dim       string
	bold      string
	component string
	attrs     string
	debug     string
	info      string
	warn      string
	error     string
}

var (
	ansi = palette{
		reset:     "\033[0m",
		dim:       "\033[90m",
		bold:      "\033[1m",
		component: "\033[32m",
		attrs:     "\033[36m",
		debug:     "\033[90m",
		info:      "\033[34m",
		warn:      "\033[33m",
		error:     "\033[31m",
	}
	plain palette
)

func (p *palette) level(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return p.error
	case l >= slog.LevelWarn:
		return p.warn
	case l >= slog.LevelInfo:
		return p.info
	default:
		return p.debug
	}
}

// PrettyHandler renders one line per record for terminals:
//
//	[2006-01-02 15:04:05] INFO  rwkvffi: model loaded version=7 layers=24
//
// A top-level component attribute becomes the message prefix. Attributes
// added through WithAttrs are rendered once and reused.
type PrettyHandler struct {
	out       *prettyOutput
	level     slog.Leveler
	pal       *palette
	component string
	prefix    string
	attrs     []byte
}

// prettyOutput is shared by every handler derived from one root.
type prettyOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrettyHandler writes records at or above level to w. A nil level
// means Info.
func NewPrettyHandler(w io.Writer, level slog.Leveler, color bool) *PrettyHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	pal := &plain
	if color {
		pal = &ansi
	}
	return &PrettyHandler{out: &prettyOutput{w: w}, level: level, pal: pal}
}

func (h *PrettyHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	p := h.pal
	buf := make([]byte, 0, 256)

	buf = append(buf, p.dim...)
	buf = append(buf, '[')
	buf = r.Time.AppendFormat(buf, time.DateTime)
	buf = append(buf, ']')
	buf = append(buf, p.reset...)
	buf = append(buf, ' ')
	buf = append(buf, p.level(r.Level)...)
	buf = append(buf, p.bold...)
	buf = fmt.Appendf(buf, "%-5s", r.Level)
	buf = append(buf, p.reset...)
	buf = append(buf, ' ')

	component := h.component
	var rec []byte
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey && h.prefix == "" {
			component = a.Value.String()
			return true
		}
		rec = appendAttr(rec, h.prefix, a)
		return true
	})

	if component != "" {
		buf = append(buf, p.component...)
		buf = append(buf, component...)
		buf = append(buf, p.reset...)
		buf = append(buf, ": "...)
	}
	buf = append(buf, r.Message...)
	if len(h.attrs) > 0 || len(rec) > 0 {
		buf = append(buf, p.attrs...)
		buf = append(buf, h.attrs...)
		buf = append(buf, rec...)
		buf = append(buf, p.reset...)
	}
	buf = append(buf, '\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := h.out.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		if a.Key == ComponentKey && h.prefix == "" {
			c.component = a.Value.String()
			continue
		}
		c.attrs = appendAttr(c.attrs, h.prefix, a)
	}
	return &c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// appendAttr renders " key=value" with prefix qualifying the key. Groups
// flatten into dotted keys.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, prefix, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	switch a.Value.Kind() {
	case slog.KindString:
		buf = appendString(buf, a.Value.String())
	case slog.KindTime:
		buf = a.Value.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		buf = append(buf, a.Value.Duration().String()...)
	default:
		buf = appendString(buf, fmt.Sprint(a.Value.Any()))
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	if s == "" || strings.ContainsFunc(s, needsQuote) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '"' || r == '=' || r == 0x7f
}
