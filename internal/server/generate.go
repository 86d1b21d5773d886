package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
)

// ErrRunSuperseded is returned when another run replaced the one being driven.
var ErrRunSuperseded = errors.New("run superseded by a newer run")

// Generate drives all four stages for req, waiting for each to finish before
// starting the next, and returns the final job state. Start must have been
// called so workers are consuming the queue.
func (a *App) Generate(ctx context.Context, req pipeline.StartRequest, poll time.Duration) (brief.JobState, error) {
	return drive(ctx, a.controller, req, poll, a.logger)
}

type stageDriver interface {
	StartStage(ctx context.Context, stage brief.Stage, req pipeline.StartRequest) (pipeline.Ticket, error)
	Status() pipeline.StatusSnapshot
}

func drive(
	ctx context.Context,
	ctrl stageDriver,
	req pipeline.StartRequest,
	poll time.Duration,
	logger *zap.Logger,
) (brief.JobState, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	var runID string
	for _, stage := range brief.Stages {
		ticket, err := ctrl.StartStage(ctx, stage, req)
		if err != nil {
			return ctrl.Status().JobState, fmt.Errorf("start %s: %w", stage, err)
		}
		if stage == brief.StageSERPCollect {
			runID = ticket.RunID
		}
		logger.Info("stage started", zap.String("run_id", runID), zap.Stringer("stage", stage))
		state, err := waitForStage(ctx, ctrl, stage, runID, poll)
		if err != nil {
			return state, err
		}
		logger.Info("stage finished", zap.Stringer("stage", stage), zap.String("message", state.Message))
	}
	return ctrl.Status().JobState, nil
}

func waitForStage(
	ctx context.Context,
	ctrl stageDriver,
	stage brief.Stage,
	runID string,
	poll time.Duration,
) (brief.JobState, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		state := ctrl.Status().JobState
		switch {
		case state.RunID != runID:
			return state, ErrRunSuperseded
		case state.Status == brief.StatusError:
			return state, fmt.Errorf("%s failed: %s", stage, state.Error)
		case state.Step == stage.Completes():
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, fmt.Errorf("wait for %s: %w", stage, ctx.Err())
		case <-ticker.C:
		}
	}
}
