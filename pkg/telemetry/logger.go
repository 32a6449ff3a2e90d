package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

const (
	MaxFields     = 64
	MaxKeyLen     = 64
	MaxValLen     = 512
	MaxLogMessageLen = 1024
	MaxLogServiceLen = 64

	// Bound conflict reporting.
	MaxConflictKeys = 8

	// Deterministic value encoding bound (before sanitize truncation).
	MaxDeterministicJSONBytes = 2048
)

// Field is a deterministic key/value field representation.
type Field struct {
	K string `json:"k"`
	V string `json:"v"`
}

// Event is a single log record (JSON line).
type Event struct {
	Ts      string  `json:"ts"`
	Level   Level   `json:"level"`
	Service string  `json:"service,omitempty"`
	Msg     string  `json:"msg"`
	Fields  []Field `json:"fields,omitempty"`
}

// Options configures the logger.
type Options struct {
	Service string
	Level   Level
	// Timestamp controls whether Ts is populated. NewLogger always sets it
	// to true.
	Timestamp bool
}

// Logger is a structured JSON-lines logger (stdlib-only).
type Logger struct {
	w   io.Writer
	mu  sync.Mutex
	opt Options
}

// Nop is a safe no-op logger.
var Nop = &Logger{w: io.Discard, opt: Options{Timestamp: true, Level: LevelError}}

// NewLogger creates a logger writing JSON lines to w, with timestamps on by
// default.
func NewLogger(w io.Writer, opt Options) *Logger {
	if w == nil {
		w = os.Stdout
	}
	opt.Service = strings.TrimSpace(opt.Service)
	if len(opt.Service) > MaxLogServiceLen {
		opt.Service = opt.Service[:MaxLogServiceLen]
	}
	if opt.Level == "" {
		opt.Level = LevelInfo
	}
	opt.Timestamp = true
	return &Logger{w: w, opt: opt}
}

// NewDefaultLogger returns an info-level logger with timestamps enabled.
func NewDefaultLogger(w io.Writer, service string) *Logger {
	return NewLogger(w, Options{Service: service, Level: LevelInfo, Timestamp: true})
}

func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelDebug, msg, fields)
}
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelInfo, msg, fields)
}
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelWarn, msg, fields)
}
func (l *Logger) Error(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *Logger) enabled(level Level) bool {
	rank := func(x Level) int {
		switch x {
		case LevelDebug:
			return 1
		case LevelInfo:
			return 2
		case LevelWarn:
			return 3
		default:
			return 4
		}
	}
	return rank(level) >= rank(l.opt.Level)
}

// log merges caller fields with context-carried enrichment (trace/span ids,
// request_id, dataset identity) into one deterministically ordered field
// list. Enriched fields are authoritative: a caller field with the same key
// is overwritten and the collision is recorded under field_conflicts.
func (l *Logger) log(ctx context.Context, level Level, msg string, fields map[string]any) {
	if l == nil || !l.enabled(level) {
		return
	}
	ev := Event{
		Level:   level,
		Service: l.opt.Service,
		Msg:     sanitize(msg, MaxLogMessageLen),
	}
	if l.opt.Timestamp {
		ev.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	}

	merged := make(map[string]string, 16)
	conflicts := make([]string, 0, 4)

	set := func(k, v string, authoritative bool) {
		k = strings.TrimSpace(k)
		if k == "" || len(k) > MaxKeyLen {
			return
		}
		v = sanitize(v, MaxValLen)
		if existing, ok := merged[k]; ok && existing != v {
			if len(conflicts) < MaxConflictKeys {
				conflicts = append(conflicts, k)
			}
			if authoritative {
				merged[k] = v
			}
			return
		}
		merged[k] = v
	}

	if sc, ok := SpanContextFromContext(ctx); ok {
		set("trace_id", sc.TraceID, true)
		set("span_id", sc.SpanID, true)
		if sc.ParentSpanID != "" {
			set("parent_span_id", sc.ParentSpanID, true)
		}
		set("sampled", boolString(sc.Sampled), true)
	}
	if ctx != nil {
		if v := ctx.Value(requestIDKey{}); v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				set("request_id", s, true)
			}
		}
		if v := ctx.Value(datasetKey{}); v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				set("dataset", s, true)
			}
		}
	}

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			k2 := strings.TrimSpace(k)
			if k2 == "" || len(k2) > MaxKeyLen {
				continue
			}
			set(k2, valueToStringDeterministic(fields[k]), false)
			if len(merged) >= MaxFields {
				set("log_truncated", "true", true)
				break
			}
		}
	}

	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		set("field_conflicts", strings.Join(conflicts, ","), true)
	}

	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ev.Fields = make([]Field, 0, minInt(len(keys), MaxFields))
		for _, k := range keys {
			ev.Fields = append(ev.Fields, Field{K: k, V: merged[k]})
			if len(ev.Fields) >= MaxFields {
				break
			}
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(line)
	_, _ = l.w.Write([]byte("\n"))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// sanitize trims, truncates, and removes control chars.
func sanitize(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[:max]
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// valueToStringDeterministic renders a field value deterministically:
// primitives directly, composite values as canonical-sorted JSON.
func valueToStringDeterministic(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return boolString(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		return x.String()
	case map[string]string, map[string]any, []any:
		if b, ok := canonicalJSONValue(x, MaxDeterministicJSONBytes); ok {
			return string(b)
		}
		mb, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(mb)
	default:
		mb, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(mb)
	}
}

// canonicalJSONValue encodes a value into deterministic JSON bytes for
// map/slice shapes, bounded by maxBytes.
func canonicalJSONValue(v any, maxBytes int) ([]byte, bool) {
	var buf bytes.Buffer
	ok := true
	write := func(b []byte) {
		if !ok {
			return
		}
		if maxBytes > 0 && buf.Len()+len(b) > maxBytes {
			ok = false
			return
		}
		_, _ = buf.Write(b)
	}

	var enc func(any)
	enc = func(val any) {
		if !ok {
			return
		}
		switch x := val.(type) {
		case nil:
			write([]byte("null"))
		case bool:
			write([]byte(boolString(x)))
		case string:
			b, err := json.Marshal(x)
			if err != nil {
				write([]byte(`""`))
				return
			}
			write(b)
		case []byte:
			b, err := json.Marshal(string(x))
			if err != nil {
				write([]byte(`""`))
				return
			}
			write(b)
		case float64:
			write([]byte(strconv.FormatFloat(x, 'g', -1, 64)))
		case int:
			write([]byte(strconv.Itoa(x)))
		case int64:
			write([]byte(strconv.FormatInt(x, 10)))
		case uint:
			write([]byte(strconv.FormatUint(uint64(x), 10)))
		case uint64:
			write([]byte(strconv.FormatUint(x, 10)))
		case json.Number:
			s := x.String()
			if s == "" {
				write([]byte("null"))
				return
			}
			write([]byte(s))
		case []any:
			write([]byte("["))
			for i := range x {
				if i > 0 {
					write([]byte(","))
				}
				enc(x[i])
			}
			write([]byte("]"))
		case map[string]string:
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			write([]byte("{"))
			for i, k := range keys {
				if i > 0 {
					write([]byte(","))
				}
				kb, _ := json.Marshal(k)
				write(kb)
				write([]byte(":"))
				vb, _ := json.Marshal(x[k])
				write(vb)
			}
			write([]byte("}"))
		case map[string]any:
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			write([]byte("{"))
			for i, k := range keys {
				if i > 0 {
					write([]byte(","))
				}
				kb, _ := json.Marshal(k)
				write(kb)
				write([]byte(":"))
				enc(x[k])
			}
			write([]byte("}"))
		default:
			b, err := json.Marshal(x)
			if err != nil {
				write([]byte("null"))
				return
			}
			write(b)
		}
	}
	enc(v)
	if !ok {
		return nil, false
	}
	return buf.Bytes(), true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
