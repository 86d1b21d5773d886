package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/seo-brief-automator/internal/progress"
)

// PrometheusSink exports stage and run metrics derived from progress events.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsCompleted  prometheus.Counter
	stagesStarted  *prometheus.CounterVec
	stagesFinished *prometheus.CounterVec
	stagesRunning  prometheus.Gauge
	stageDuration  *prometheus.HistogramVec

	tracker *stageTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brief_runs_started_total",
			Help: "Runs started by a stage-1 request.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brief_runs_completed_total",
			Help: "Runs whose final brief was generated.",
		}),
		stagesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brief_stages_started_total",
			Help: "Stage executions started, labeled by stage.",
		}, []string{"stage"}),
		stagesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brief_stages_finished_total",
			Help: "Stage executions finished, labeled by stage and result.",
		}, []string{"stage", "result"}),
		stagesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brief_stages_running",
			Help: "Stages currently executing.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brief_stage_duration_seconds",
			Help:    "Wall time per stage execution.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage", "result"}),
		tracker: &stageTracker{running: make(map[string]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.stagesStarted,
		s.stagesFinished,
		s.stagesRunning,
		s.stageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	stage := strconv.Itoa(evt.Stage)
	key := evt.RunID + "/" + stage
	switch evt.Kind {
	case progress.KindRunReset:
		s.runsStarted.Inc()
	case progress.KindStageStart:
		s.stagesStarted.WithLabelValues(stage).Inc()
		if s.tracker.start(key) {
			s.stagesRunning.Inc()
		}
	case progress.KindStageDone, progress.KindStageError:
		result := "success"
		if evt.Kind == progress.KindStageError {
			result = "error"
		}
		s.stagesFinished.WithLabelValues(stage, result).Inc()
		if evt.Dur > 0 {
			s.stageDuration.WithLabelValues(stage, result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(key) {
			s.stagesRunning.Dec()
		}
		if evt.Kind == progress.KindStageDone && evt.Stage == 4 {
			s.runsCompleted.Inc()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type stageTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func (t *stageTracker) start(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *stageTracker) complete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
