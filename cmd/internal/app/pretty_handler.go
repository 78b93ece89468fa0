package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	requestLogMsg      = "http.request"
	authAuditMsgPrefix = "audit.auth."
	redactedValue      = "***"
)

// prettyHandler renders records as one human-readable line for local development:
//
//	14:02:11.384 INFO  http.request POST /api/prompt/01J.../run/ 200 12ms request_id=...
//	14:02:11.390 AUDIT login.success user_id=01J... ip=127.0.0.1
//
// Request logs collapse method, path, status and duration into a summary. Auth audit
// events get their own tag. Values under credential-like keys are never printed.
type prettyHandler struct {
	w         io.Writer
	level     slog.Leveler
	addSource bool
	color     bool
	preset    []prettyField
	groups    []string
	mu        *sync.Mutex
}

type prettyField struct {
	key string
	val slog.Value
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, level: slog.LevelInfo, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]prettyField{}, h.preset...)
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		fields = flattenAttr(fields, a, prefix)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(paint(ts.Format("15:04:05.000"), ansiDim, h.color))
	b.WriteByte(' ')

	switch {
	case strings.HasPrefix(r.Message, authAuditMsgPrefix):
		b.WriteString(paint("AUDIT", ansiMagenta, h.color))
		b.WriteByte(' ')
		b.WriteString(paint(strings.TrimPrefix(r.Message, authAuditMsgPrefix), ansiBright, h.color))
	case r.Message == requestLogMsg:
		b.WriteString(levelTag(r.Level, h.color))
		b.WriteByte(' ')
		b.WriteString(r.Message)
		fields = h.writeRequestSummary(&b, fields)
	default:
		b.WriteString(levelTag(r.Level, h.color))
		b.WriteByte(' ')
		b.WriteString(paint(r.Message, ansiBright, h.color))
	}

	for _, f := range fields {
		if f.key == "service" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(h.fieldValue(f))
	}

	if h.addSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(paint(fmt.Sprintf(" (%s:%d)", filepath.Base(frame.File), frame.Line), ansiDim, h.color))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.preset = append([]prettyField{}, h.preset...)
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		cp.preset = flattenAttr(cp.preset, a, prefix)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

// writeRequestSummary prints "METHOD path status duration" and returns the fields it did not consume.
// status_class and result are implied by the coloured status and are dropped.
func (h *prettyHandler) writeRequestSummary(b *strings.Builder, fields []prettyField) []prettyField {
	var method, path string
	status, durMS := int64(-1), int64(-1)

	rest := fields[:0:0]
	for _, f := range fields {
		switch f.key {
		case "method":
			method = strings.ToUpper(f.val.String())
		case "path":
			path = f.val.String()
		case "status":
			if n, ok := valueToInt64(f.val); ok {
				status = n
				continue
			}
			rest = append(rest, f)
		case "duration_ms":
			if n, ok := valueToInt64(f.val); ok {
				durMS = n
				continue
			}
			rest = append(rest, f)
		case "status_class", "result":
		default:
			rest = append(rest, f)
		}
	}

	if method != "" {
		b.WriteByte(' ')
		b.WriteString(colorizeHTTPMethod(method, h.color))
	}
	if path != "" {
		b.WriteByte(' ')
		b.WriteString(paint(quoteIfNeeded(path), ansiCyan, h.color))
	}
	if status >= 0 {
		b.WriteByte(' ')
		b.WriteString(colorizeStatusCode(int(status), h.color))
	}
	if durMS >= 0 {
		b.WriteByte(' ')
		b.WriteString(colorizeDurationMS(durMS, h.color))
	}
	return rest
}

func (h *prettyHandler) fieldValue(f prettyField) string {
	if isSecretKey(f.key) {
		return redactedValue
	}

	switch lastSegment(f.key) {
	case "err":
		return paint(quoteIfNeeded(valueToString(f.val)), ansiRed, h.color)
	case "request_id", "user_id", "prompt_id":
		return paint(quoteIfNeeded(f.val.String()), ansiDim, h.color)
	case "status":
		if n, ok := valueToInt64(f.val); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "result":
		return colorizeResult(strings.ToLower(f.val.String()), h.color)
	}
	return quoteIfNeeded(valueToString(f.val))
}

func flattenAttr(dst []prettyField, a slog.Attr, prefix string) []prettyField {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if a.Value.Kind() == slog.KindGroup {
		if key != "" {
			prefix = joinKey(prefix, key)
		}
		for _, ga := range a.Value.Group() {
			dst = flattenAttr(dst, ga, prefix)
		}
		return dst
	}
	if key == "" {
		return dst
	}
	return append(dst, prettyField{key: joinKey(prefix, key), val: a.Value})
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func isSecretKey(key string) bool {
	k := strings.ToLower(lastSegment(key))
	switch k {
	case "password", "current_password", "new_password", "access", "refresh", "cookie", "authorization":
		return true
	}
	return strings.HasSuffix(k, "token") || strings.HasSuffix(k, "secret")
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("ERROR", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("WARN ", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("DEBUG", ansiBlue, color)
	default:
		return paint("INFO ", ansiGreen, color)
	}
}
