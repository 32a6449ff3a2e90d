package telemetry

import "context"

// SpanContext is a minimal tracing context used for log enrichment.
type SpanContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Sampled      bool
}

type spanContextKey struct{}
type requestIDKey struct{}
type datasetKey struct{}

// ContextWithSpanContext returns a context carrying the provided SpanContext.
func ContextWithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanContextKey{}, sc)
}

// SpanContextFromContext extracts a SpanContext from ctx if present.
func SpanContextFromContext(ctx context.Context) (SpanContext, bool) {
	if ctx == nil {
		return SpanContext{}, false
	}
	v := ctx.Value(spanContextKey{})
	sc, ok := v.(SpanContext)
	if !ok {
		return SpanContext{}, false
	}
	if sc.TraceID == "" && sc.SpanID == "" && sc.ParentSpanID == "" && !sc.Sampled {
		return SpanContext{}, false
	}
	return sc, true
}

// ContextWithRequestID attaches the per-request id used for log correlation
// and the frozen error envelope's request_id field.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request id, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(requestIDKey{}).(string)
	return v, ok && v != ""
}

// ContextWithDataset attaches the dataset canonical string a request is
// scoped to, so every log line in that request's lifetime carries it.
func ContextWithDataset(ctx context.Context, canonical string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, datasetKey{}, canonical)
}

// DatasetFromContext extracts the dataset canonical string, if any.
func DatasetFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(datasetKey{}).(string)
	return v, ok && v != ""
}
