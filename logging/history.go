// Package logging builds the process logger and keeps a bounded history of
// recent records for the HTTP API.
package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HistoryPolicy bounds the in-memory log history. A zero Capacity disables
// it.
type HistoryPolicy struct {
	Capacity int
}

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Entry(nil), r.buf[:r.next]...)
	}
	out := make([]Entry, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// History is a slog.Handler that records every handled record in a ring
// buffer before passing it to the wrapped handler.
type History struct {
	ring   *ring
	inner  slog.Handler
	attrs  []slog.Attr
	prefix string
}

// NewHistory wraps inner.
func NewHistory(inner slog.Handler, policy HistoryPolicy) *History {
	h := &History{inner: inner}
	if policy.Capacity > 0 {
		h.ring = &ring{buf: make([]Entry, policy.Capacity)}
	}
	return h
}

func (h *History) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *History) Handle(ctx context.Context, r slog.Record) error {
	if h.ring != nil {
		e := Entry{
			Time:    r.Time,
			Level:   r.Level.String(),
			Message: r.Message,
		}
		if len(h.attrs) > 0 || r.NumAttrs() > 0 {
			e.Attrs = make(map[string]any, len(h.attrs)+r.NumAttrs())
			for _, a := range h.attrs {
				flatten(e.Attrs, "", a)
			}
			r.Attrs(func(a slog.Attr) bool {
				flatten(e.Attrs, h.prefix, a)
				return true
			})
		}
		h.ring.add(e)
	}
	return h.inner.Handle(ctx, r)
}

func (h *History) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *History) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.inner = h.inner.WithGroup(name)
	next.prefix = h.prefix + name + "."
	return &next
}

// Entries returns the recorded entries, oldest first.
func (h *History) Entries() []Entry {
	if h.ring == nil {
		return nil
	}
	return h.ring.entries()
}

// Capacity returns the configured capacity.
func (h *History) Capacity() int {
	if h.ring == nil {
		return 0
	}
	return len(h.ring.buf)
}

func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key
	switch val := v.Any().(type) {
	case error:
		dst[key] = val.Error()
	case time.Duration:
		dst[key] = val.String()
	default:
		dst[key] = val
	}
}
