// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Redaction replaces sensitive values.
const Redaction = "***"

// Separator ends a field=value pair inside a log message.
const Separator = ";"

// DefaultRedactFields are the credential fields never written to logs.
var DefaultRedactFields = []string{
	"password",
	"new_password",
	"hashed_password",
	"session_token",
	"reset_token",
	"session_id",
}

// FilterDatum replaces the value of every field=value<separator> pair in
// message whose field is listed in fields.
func FilterDatum(fields []string, redaction, message, separator string) string {
	return newRedactor(fields, redaction, separator).filter(message)
}

type redactor struct {
	keys      map[string]struct{}
	patterns  []fieldPattern
	redaction string
	separator string
}

type fieldPattern struct {
	re          *regexp.Regexp
	replacement string
}

func newRedactor(fields []string, redaction, separator string) *redactor {
	r := &redactor{
		keys:      make(map[string]struct{}, len(fields)),
		patterns:  make([]fieldPattern, 0, len(fields)),
		redaction: redaction,
		separator: separator,
	}
	for _, f := range fields {
		if f == "" {
			continue
		}
		r.keys[strings.ToLower(f)] = struct{}{}
		// Substring match: "password" also masks "new_password=...".
		expr := regexp.QuoteMeta(f) + `=.*?` + regexp.QuoteMeta(separator)
		r.patterns = append(r.patterns, fieldPattern{
			re:          regexp.MustCompile(expr),
			replacement: escapeReplacement(f + "=" + redaction + separator),
		})
	}
	return r
}

func (r *redactor) filter(message string) string {
	for _, p := range r.patterns {
		message = p.re.ReplaceAllString(message, p.replacement)
	}
	return message
}

func (r *redactor) sensitive(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// attr redacts a sensitive attribute, descends into groups, and filters
// field=value pairs inside string values and the text of other values such
// as errors. A non-string value is replaced by its filtered text only when
// filtering changed it.
func (r *redactor) attr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if r.sensitive(a.Key) {
		return slog.String(a.Key, r.redaction)
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = r.attr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		return slog.String(a.Key, r.filter(a.Value.String()))
	case slog.KindAny:
		text := fmt.Sprint(a.Value.Any())
		if filtered := r.filter(text); filtered != text {
			return slog.String(a.Key, filtered)
		}
		return a
	default:
		return a
	}
}

// RedactingHandler masks sensitive attributes and message fragments before
// passing records to the wrapped handler.
type RedactingHandler struct {
	handler slog.Handler
	r       *redactor
}

// NewRedactingHandler wraps inner. Attribute keys are matched
// case-insensitively at every group depth.
func NewRedactingHandler(inner slog.Handler, fields []string) *RedactingHandler {
	return &RedactingHandler{handler: inner, r: newRedactor(fields, Redaction, Separator)}
}

// Enabled reports whether the wrapped handler handles level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle redacts r and forwards it.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.r.filter(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.r.attr(a))
		return true
	})
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, out)
}

// WithAttrs redacts attrs and returns a handler that carries them.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.r.attr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(redacted), r: h.r}
}

// WithGroup returns a handler that nests attributes under name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name), r: h.r}
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

var _ slog.Handler = (*RedactingHandler)(nil)
