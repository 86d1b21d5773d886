package budget

import "context"

type runKey struct{}

// WithRun tags ctx with the budget run its model calls are charged to.
func WithRun(ctx context.Context, run uint64) context.Context {
	return context.WithValue(ctx, runKey{}, run)
}

// RunFrom returns the budget run carried by ctx.
func RunFrom(ctx context.Context) (uint64, bool) {
	run, ok := ctx.Value(runKey{}).(uint64)
	return run, ok
}
