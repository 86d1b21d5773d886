package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/budget"
	"github.com/JakeFAU/seo-brief-automator/internal/progress"
	"github.com/JakeFAU/seo-brief-automator/internal/prompts"
)

const (
	finalMaxTokens   = 4000
	finalTemperature = 0.7
	followUpTimeout  = 10 * time.Second
	tracerName       = "github.com/JakeFAU/seo-brief-automator/internal/pipeline"
)

// RunnerConfig tunes stage execution.
type RunnerConfig struct {
	// SERPLimit caps the results requested in stage 1 (default 10).
	SERPLimit int
	// FinalModel overrides the model used for the combined brief.
	FinalModel string
	// CompletedTopic is where completion events are published.
	CompletedTopic string
}

// Collaborators are the external services the stages call. History and
// Publisher are optional.
type Collaborators struct {
	SERP       brief.SERPFetcher
	Researcher brief.Researcher
	// Model must be gated by the same limiter passed to NewRunner.
	Model     brief.ModelClient
	Renderer  brief.Renderer
	Saver     brief.DocumentSaver
	Hasher    brief.Hasher
	Clock     brief.Clock
	History   brief.HistoryRecorder
	Publisher brief.Publisher
	Emitter   progress.Emitter
}

// Runner executes stage tasks against the store.
type Runner struct {
	store   *Store
	limiter *budget.Limiter
	deps    Collaborators
	cfg     RunnerConfig
	logger  *zap.Logger
}

// outcome is what a stage produced: the commit message and the mutation.
type outcome struct {
	message string
	apply   func(*brief.JobState)
	after   func(ctx context.Context)
}

// NewRunner builds a Runner.
func NewRunner(store *Store, limiter *budget.Limiter, deps Collaborators, cfg RunnerConfig, logger *zap.Logger) (*Runner, error) {
	if store == nil || limiter == nil {
		return nil, errors.New("store and limiter are required")
	}
	if deps.SERP == nil || deps.Researcher == nil || deps.Model == nil || deps.Renderer == nil ||
		deps.Saver == nil || deps.Hasher == nil || deps.Clock == nil {
		return nil, errors.New("serp, researcher, model, renderer, saver, hasher, and clock are required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if cfg.SERPLimit <= 0 {
		cfg.SERPLimit = 10
	}
	if cfg.CompletedTopic == "" {
		cfg.CompletedTopic = "brief-completed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: store, limiter: limiter, deps: deps, cfg: cfg, logger: logger}, nil
}

// Run executes one stage. Collaborator failures are recorded on the job and
// also returned; a superseded task returns brief.ErrStaleTicket without
// touching the job.
func (r *Runner) Run(ctx context.Context, task StageTask) error {
	t := task.Ticket
	runCtx, cancel := context.WithCancel(t.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	logger := r.logger.With(zap.String("run_id", t.RunID), zap.Stringer("stage", t.Stage))
	if !r.store.Current(t) {
		logger.Info("skipping superseded stage")
		return brief.ErrStaleTicket
	}

	runCtx, span := otel.Tracer(tracerName).Start(runCtx, "pipeline."+t.Stage.String(),
		trace.WithAttributes(
			attribute.String("run_id", t.RunID),
			attribute.Int("stage", int(t.Stage)),
			attribute.Int64("queue_wait_ms", time.Since(task.EnqueuedAt).Milliseconds()),
		),
	)
	defer span.End()

	start := time.Now()
	state := r.store.Snapshot()
	out, err := r.execute(runCtx, t.Stage, state, task.CustomPrompt)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, brief.ErrorKind(err))
		if failErr := r.store.Fail(t, err); failErr != nil {
			logger.Info("discarding failure of superseded stage", zap.Error(err))
			return failErr
		}
		r.emit(t, progress.KindStageError, dur, err.Error())
		logger.Warn("stage failed", zap.Error(err), zap.String("kind", brief.ErrorKind(err)), zap.Duration("elapsed", dur))
		return err
	}
	if err := r.store.Commit(t, out.message, out.apply); err != nil {
		logger.Info("discarding result of superseded stage")
		return err
	}
	r.emit(t, progress.KindStageDone, dur, "")
	logger.Info("stage completed", zap.Duration("elapsed", dur))

	if out.after != nil {
		followCtx, cancelFollow := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
		defer cancelFollow()
		out.after(followCtx)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, stage brief.Stage, state brief.JobState, customPrompt string) (out outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = outcome{}, fmt.Errorf("stage panicked: %v", p)
		}
	}()
	switch stage {
	case brief.StageSERPCollect:
		return r.collectSERP(ctx, state)
	case brief.StageUGCResearch:
		return r.researchUGC(ctx, state, customPrompt)
	case brief.StageSERPAnalysis:
		return r.analyzeSERP(ctx, state, customPrompt)
	case brief.StageCombine:
		return r.combine(ctx, state, customPrompt)
	default:
		return outcome{}, fmt.Errorf("unknown stage %d", int(stage))
	}
}

func (r *Runner) collectSERP(ctx context.Context, state brief.JobState) (outcome, error) {
	if state.FocusKeyword == "" {
		return outcome{}, fmt.Errorf("%w: focus keyword", brief.ErrMissingOutput)
	}
	results, err := r.deps.SERP.Search(ctx, state.FocusKeyword, r.cfg.SERPLimit)
	if err != nil {
		return outcome{}, fmt.Errorf("serp search: %w", err)
	}
	if len(results) > r.cfg.SERPLimit {
		results = results[:r.cfg.SERPLimit]
	}
	kept := make([]brief.SERPResult, len(results))
	copy(kept, results)
	return outcome{
		message: fmt.Sprintf("Step 1 Complete: Found %d SERP results. Ready for UGC research.", len(kept)),
		apply: func(s *brief.JobState) {
			s.SERPResults = kept
		},
	}, nil
}

func (r *Runner) researchUGC(ctx context.Context, state brief.JobState, customPrompt string) (outcome, error) {
	if state.FocusKeyword == "" || state.TopicTheme == "" || state.BuyerPersona == "" {
		return outcome{}, fmt.Errorf("%w: run inputs", brief.ErrMissingOutput)
	}
	out, err := r.deps.Researcher.Research(ctx, brief.ResearchRequest{
		FocusKeyword: state.FocusKeyword,
		TopicTheme:   state.TopicTheme,
		BuyerPersona: state.BuyerPersona,
		CustomPrompt: customPrompt,
	})
	if err != nil {
		return outcome{}, fmt.Errorf("ugc research: %w", err)
	}
	return outcome{
		message: "Step 2 Complete: Enhanced UGC research completed. Ready for SERP analysis.",
		apply: func(s *brief.JobState) {
			s.UGCBrief = &out
		},
	}, nil
}

func (r *Runner) analyzeSERP(ctx context.Context, state brief.JobState, customPrompt string) (outcome, error) {
	if state.UGCBrief == nil {
		return outcome{}, fmt.Errorf("%w: ugc research", brief.ErrMissingOutput)
	}
	out, err := r.deps.Researcher.AnalyzeSERP(ctx, state.SERPResults, state.FocusKeyword, customPrompt)
	if err != nil {
		return outcome{}, fmt.Errorf("serp analysis: %w", err)
	}
	return outcome{
		message: "Step 3 Complete: SERP analysis completed. Ready for final brief.",
		apply: func(s *brief.JobState) {
			s.SERPBrief = &out
		},
	}, nil
}

func (r *Runner) combine(ctx context.Context, state brief.JobState, customPrompt string) (outcome, error) {
	if r.limiter.Exhausted() {
		snap := r.limiter.Snapshot()
		return outcome{}, fmt.Errorf("%w: %d/%d calls used", brief.ErrRateLimitExceeded, snap.CurrentCount, snap.MaxRequests)
	}
	if state.UGCBrief == nil {
		return outcome{}, fmt.Errorf("%w: ugc research", brief.ErrMissingOutput)
	}
	if state.SERPBrief == nil {
		return outcome{}, fmt.Errorf("%w: serp analysis", brief.ErrMissingOutput)
	}
	inputs := state.Inputs()
	if inputs.ContentID == "" {
		inputs.ContentID = brief.DeriveContentID(inputs.FocusKeyword)
	}

	text, err := r.deps.Model.Complete(ctx, brief.CompletionRequest{
		System:      prompts.FinalSystem,
		User:        prompts.Final(customPrompt, inputs, state.UGCBrief.RawResponse, state.SERPBrief.RawResponse),
		MaxTokens:   finalMaxTokens,
		Temperature: finalTemperature,
		Model:       r.cfg.FinalModel,
	})
	if err != nil {
		return outcome{}, fmt.Errorf("final brief: %w", err)
	}
	html, err := r.deps.Renderer.Render(text)
	if err != nil {
		return outcome{}, fmt.Errorf("render final brief: %w", err)
	}
	hash, err := r.deps.Hasher.Hash([]byte(text))
	if err != nil {
		return outcome{}, fmt.Errorf("hash final brief: %w", err)
	}

	now := r.deps.Clock.Now()
	final := brief.StageOutput{
		RawResponse:  text,
		RawMarkdown:  text,
		HTMLOutput:   html,
		CustomPrompt: customPrompt,
		GeneratedAt:  now,
	}
	record := brief.CombinedRecord{
		RunID:        state.RunID,
		FocusKeyword: inputs.FocusKeyword,
		TopicTheme:   inputs.TopicTheme,
		BuyerPersona: inputs.BuyerPersona,
		ContentID:    inputs.ContentID,
		GeneratedAt:  now,
		Status:       string(brief.StatusCompleted),
		SERPAnalysis: brief.SERPSummary{
			ArticlesFound: len(state.SERPResults),
			Articles:      state.SERPResults,
		},
		UGCResearch:  state.UGCBrief,
		SERPBrief:    state.SERPBrief,
		FinalBrief:   &final,
		BriefContent: text,
		ContentHash:  hash,
	}
	filename, err := r.deps.Saver.Save(ctx, record)
	if err != nil {
		return outcome{}, fmt.Errorf("save brief: %w", err)
	}
	final.Filename = filename

	summary := brief.RunSummary{
		RunID:        state.RunID,
		ContentID:    inputs.ContentID,
		FocusKeyword: inputs.FocusKeyword,
		TopicTheme:   inputs.TopicTheme,
		BuyerPersona: inputs.BuyerPersona,
		Filename:     filename,
		ContentHash:  hash,
		SERPCount:    len(state.SERPResults),
		ModelCalls:   r.limiter.Snapshot().CurrentCount,
		CompletedAt:  now,
	}
	return outcome{
		message: "Complete: Final brief generated successfully!",
		apply: func(s *brief.JobState) {
			s.ContentID = inputs.ContentID
			s.FinalBrief = &final
			s.Result = &record
		},
		after: func(ctx context.Context) {
			r.recordCompletion(ctx, summary)
		},
	}, nil
}

func (r *Runner) recordCompletion(ctx context.Context, summary brief.RunSummary) {
	logger := r.logger.With(zap.String("run_id", summary.RunID), zap.String("filename", summary.Filename))
	if r.deps.History != nil {
		if err := r.deps.History.RecordRun(ctx, summary); err != nil {
			logger.Warn("record run history failed", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil {
		event := brief.CompletedEvent{
			RunID:        summary.RunID,
			ContentID:    summary.ContentID,
			FocusKeyword: summary.FocusKeyword,
			Filename:     summary.Filename,
			CompletedAt:  summary.CompletedAt,
		}
		id, err := r.deps.Publisher.Publish(ctx, r.cfg.CompletedTopic, event)
		if err != nil {
			logger.Warn("publish completion failed", zap.Error(err))
			return
		}
		logger.Debug("completion published", zap.String("message_id", id))
	}
}

func (r *Runner) emit(t Ticket, kind progress.Kind, dur time.Duration, note string) {
	emitEvent(r.deps.Emitter, r.store, r.limiter, r.deps.Clock, t, kind, dur, note)
}
