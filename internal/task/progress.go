package task

import "context"

type progressKey struct{}

type taskIDKey struct{}

// progressFunc records progress for the task owning the context.
type progressFunc func(pct float64)

func withProgress(ctx context.Context, fn progressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func withTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// IDFromContext returns the ID of the task running with ctx.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey{}).(string)
	return id, ok && id != ""
}

// ReportProgress records the completion percentage of the task running with
// ctx. Values are clamped to [0, 100] and progress never moves backwards.
// Outside a worker context the call is a no-op.
func ReportProgress(ctx context.Context, pct float64) {
	fn, ok := ctx.Value(progressKey{}).(progressFunc)
	if !ok || fn == nil {
		return
	}
	fn(pct)
}

func clampProgress(pct float64) float64 {
	switch {
	case pct != pct: // NaN
		return 0
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
