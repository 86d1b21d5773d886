package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/seo-brief-automator/internal/progress"
)

func TestPrometheusSinkRecordsStages(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{RunID: "r1", TS: now, Kind: progress.KindRunReset},
		{RunID: "r1", TS: now, Kind: progress.KindStageStart, Stage: 1},
		{RunID: "r1", TS: now, Kind: progress.KindStageDone, Stage: 1, Dur: 2 * time.Second},
		{RunID: "r1", TS: now, Kind: progress.KindStageStart, Stage: 4},
		{RunID: "r1", TS: now, Kind: progress.KindStageError, Stage: 4, Dur: time.Second, Note: "boom"},
		{RunID: "r1", TS: now, Kind: progress.KindStageStart, Stage: 4},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsCompleted), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.stagesStarted.WithLabelValues("4")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.stagesFinished.WithLabelValues("4", "error")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.stagesRunning), 1e-9)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r1", TS: now, Kind: progress.KindStageDone, Stage: 4, Dur: time.Second},
	}))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.stagesRunning), 1e-9)
	require.Equal(t, 3, testutil.CollectAndCount(sink.stageDuration, "brief_stage_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r1", TS: now, Kind: progress.KindStageStart, Stage: 2},
		{RunID: "r1", TS: now, Kind: progress.KindStageError, Stage: 2, Note: "provider down"},
	}))
	require.Equal(t, 2, logs.Len())
	require.Equal(t, 1, logs.FilterMessage("stage failed").Len())
	require.Equal(t, "provider down", logs.FilterMessage("stage failed").All()[0].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
