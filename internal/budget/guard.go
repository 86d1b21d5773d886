package budget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
)

// GuardedClient wraps a ModelClient so every call first consumes budget.
type GuardedClient struct {
	next    brief.ModelClient
	limiter *Limiter
	logger  *zap.Logger
}

var _ brief.ModelClient = (*GuardedClient)(nil)

// Guard returns a ModelClient that refuses calls once limiter is exhausted.
func Guard(next brief.ModelClient, limiter *Limiter, logger *zap.Logger) *GuardedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedClient{next: next, limiter: limiter, logger: logger}
}

// Complete consumes one unit of budget and delegates to the wrapped client.
// Calls on a canceled context or charged to a superseded run (see WithRun)
// are refused before any budget is consumed.
func (g *GuardedClient) Complete(ctx context.Context, req brief.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	exhausted, err := g.consume(ctx)
	if err != nil {
		g.logger.Info("model call refused", zap.Error(err))
		return "", err
	}
	if exhausted {
		snap := g.limiter.Snapshot()
		metrics.ObserveModelCall("rate_limited", 0)
		metrics.SetBudgetUsage(snap.CurrentCount)
		g.logger.Warn("model call refused",
			zap.Int("current_count", snap.CurrentCount),
			zap.Int("max_requests", snap.MaxRequests),
		)
		return "", fmt.Errorf("%w: %d/%d calls used", brief.ErrRateLimitExceeded, snap.CurrentCount, snap.MaxRequests)
	}
	metrics.SetBudgetUsage(g.limiter.Snapshot().CurrentCount)
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	text, err := g.next.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveModelCall("error", elapsed)
		return "", fmt.Errorf("model call: %w", err)
	}
	metrics.ObserveModelCall("ok", elapsed)
	g.logger.Debug("model call completed",
		zap.Int("max_tokens", req.MaxTokens),
		zap.Duration("elapsed", elapsed),
		zap.Int("current_count", g.limiter.Snapshot().CurrentCount),
	)
	return text, nil
}

func (g *GuardedClient) consume(ctx context.Context) (bool, error) {
	if run, ok := RunFrom(ctx); ok {
		return g.limiter.TryConsumeRun(run)
	}
	return g.limiter.TryConsume(), nil
}
