package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("kind", string(evt.Kind)),
			zap.Int("stage", evt.Stage),
			zap.String("step", evt.Step),
			zap.Int("progress", evt.Progress),
			zap.Int("model_calls", evt.ModelCalls),
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Kind == progress.KindStageError {
			s.logger.Warn("stage failed", append(fields, zap.String("note", evt.Note))...)
			continue
		}
		s.logger.Info("pipeline event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
