package core

import "context"

type jobKey struct{}

func withJob(ctx context.Context, j *Job) context.Context {
	return context.WithValue(ctx, jobKey{}, j)
}

// JobFromContext returns the job whose step is being resumed, if any.
func JobFromContext(ctx context.Context) (*Job, bool) {
	j, ok := ctx.Value(jobKey{}).(*Job)
	return j, ok
}

// NotifyDependents lets a running step open its dependents' gates before
// the step itself completes. The scheduler opens them on completion anyway,
// so calling this is only needed when dependents may start early.
// It reports whether a job was found in ctx.
func NotifyDependents(ctx context.Context) bool {
	j, ok := JobFromContext(ctx)
	if !ok {
		return false
	}
	j.ReleaseDependents(nil)
	return true
}
