package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	RunIDKey     = ContextKey("X-Sync-Run-Id")
	DatasetIDKey = ContextKey("X-Dataset-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetRunID tags ctx with the sync run it belongs to.
func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func GetRunID(ctx context.Context) string {
	value, ok := ctx.Value(RunIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetDatasetID(ctx context.Context, datasetID string) context.Context {
	return context.WithValue(ctx, DatasetIDKey, datasetID)
}

func GetDatasetID(ctx context.Context) string {
	value, ok := ctx.Value(DatasetIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// LogFields returns the run-scoped values carried by ctx for structured logs.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if v := GetRunID(ctx); v != "" {
		fields["run_id"] = v
	}
	if v := GetDatasetID(ctx); v != "" {
		fields["dataset_id"] = v
	}
	if v := GetRequestID(ctx); v != "" {
		fields["request_id"] = v
	}
	return fields
}
