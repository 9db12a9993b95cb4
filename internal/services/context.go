package services

import "context"

// Context keys are unexported ints so no other package can collide with or
// forge them.
type ctxKey int

const (
	ctxItemID ctxKey = iota
	ctxStage
	ctxRequestID
)

// WithItemID annotates ctx with the queue item identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxItemID, id)
}

// ItemIDFromContext extracts the queue item identifier if present.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxItemID).(int64)
	return id, ok
}

// WithStage annotates ctx with the pipeline stage name. Blank names leave ctx
// unchanged.
func WithStage(ctx context.Context, stage string) context.Context {
	return withNonEmpty(ctx, ctxStage, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return nonEmptyFrom(ctx, ctxStage)
}

// WithRequestID annotates ctx with a correlation identifier. Blank ids leave
// ctx unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withNonEmpty(ctx, ctxRequestID, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return nonEmptyFrom(ctx, ctxRequestID)
}

func withNonEmpty(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func nonEmptyFrom(ctx context.Context, key ctxKey) (string, bool) {
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
