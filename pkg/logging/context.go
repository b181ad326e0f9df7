package logging

import "context"

type contextKey int

const (
	taskIDKey contextKey = iota
	observationIDKey
)

// WithTaskID returns a context whose log entries carry the given task id.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// GetTaskID extracts the task id from a context, if set.
func GetTaskID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey).(string)
	return id, ok
}

// WithObservationID returns a context whose log entries carry the given
// observation id.
func WithObservationID(ctx context.Context, obsID string) context.Context {
	return context.WithValue(ctx, observationIDKey, obsID)
}

// GetObservationID extracts the observation id from a context, if set.
func GetObservationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(observationIDKey).(string)
	return id, ok
}
