package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/budget"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
	"github.com/JakeFAU/seo-brief-automator/internal/progress"
)

// MissingInputsMessage is returned when stage 1 is requested without all
// three required fields.
const MissingInputsMessage = "Focus keyword, topic theme, and buyer persona are required"

// StartRequest carries the body of a stage request. The input fields are
// read by stage 1 only; CustomPrompt is read by stages 2 to 4.
type StartRequest struct {
	FocusKeyword string `json:"focus_keyword"`
	TopicTheme   string `json:"topic_theme"`
	BuyerPersona string `json:"buyer_persona"`
	ContentID    string `json:"content_id"`
	CustomPrompt string `json:"custom_prompt"`
}

// StageTask is the unit of background work handed to the queue.
type StageTask struct {
	Ticket       Ticket
	CustomPrompt string
	EnqueuedAt   time.Time
}

// ErrQueueClosed is returned by queues that have shut down.
var ErrQueueClosed = errors.New("queue closed")

// Queue moves stage tasks from the controller to workers.
type Queue interface {
	Enqueue(ctx context.Context, task StageTask) error
	Dequeue(ctx context.Context) (StageTask, error)
}

// Enqueuer accepts stage tasks for background execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, task StageTask) error
}

// StatusSnapshot is the body of GET /status.
type StatusSnapshot struct {
	brief.JobState
	APIStatus brief.APIStatus `json:"api_status"`
}

// StatusReader assembles status snapshots from the store and the budget.
type StatusReader struct {
	store   *Store
	limiter *budget.Limiter
}

// NewStatusReader returns a StatusReader.
func NewStatusReader(store *Store, limiter *budget.Limiter) StatusReader {
	return StatusReader{store: store, limiter: limiter}
}

// Status returns the job state with the current call budget. It never waits
// on a running stage.
func (r StatusReader) Status() StatusSnapshot {
	return StatusSnapshot{
		JobState:  r.store.Snapshot(),
		APIStatus: r.limiter.Snapshot(),
	}
}

// Controller validates stage requests and schedules them.
type Controller struct {
	StatusReader

	store    *Store
	limiter  *budget.Limiter
	enqueuer Enqueuer
	emitter  progress.Emitter
	clock    brief.Clock
	logger   *zap.Logger
}

// NewController builds a Controller.
func NewController(
	store *Store,
	limiter *budget.Limiter,
	enqueuer Enqueuer,
	emitter progress.Emitter,
	clock brief.Clock,
	logger *zap.Logger,
) *Controller {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		StatusReader: NewStatusReader(store, limiter),
		store:        store,
		limiter:      limiter,
		enqueuer:     enqueuer,
		emitter:      emitter,
		clock:        clock,
		logger:       logger,
	}
}

// StartStage moves the job into stage and schedules its execution. It
// returns once the task is queued; the outcome is visible through Status.
// Out-of-order requests return a *brief.SequenceError and change nothing.
func (c *Controller) StartStage(ctx context.Context, stage brief.Stage, req StartRequest) (Ticket, error) {
	var inputs *brief.Inputs
	if stage == brief.StageSERPCollect {
		in, err := validateInputs(req)
		if err != nil {
			return Ticket{}, err
		}
		inputs = &in
	}

	ticket, err := c.store.Begin(stage, inputs)
	if err != nil {
		if errors.Is(err, brief.ErrSequenceViolation) {
			c.logger.Info("stage request rejected",
				zap.Stringer("stage", stage),
				zap.String("step", string(c.store.Snapshot().Step)),
			)
		}
		return Ticket{}, err
	}
	if stage == brief.StageSERPCollect {
		metrics.SetBudgetUsage(0)
		c.emit(ticket, progress.KindRunReset, 0, "")
		c.logger.Info("run started",
			zap.String("run_id", ticket.RunID),
			zap.String("focus_keyword", inputs.FocusKeyword),
			zap.String("content_id", inputs.ContentID),
		)
	}
	c.emit(ticket, progress.KindStageStart, 0, "")

	task := StageTask{Ticket: ticket, CustomPrompt: strings.TrimSpace(req.CustomPrompt), EnqueuedAt: c.clock.Now()}
	if err := c.enqueuer.Enqueue(ctx, task); err != nil {
		err = fmt.Errorf("schedule %s: %w", stage, err)
		restored, wErr := c.store.Withdraw(ticket, err)
		if wErr == nil {
			c.emit(ticket, progress.KindStageError, 0, err.Error())
		}
		if restored {
			metrics.SetBudgetUsage(c.limiter.Snapshot().CurrentCount)
			c.logger.Warn("new run not scheduled, previous run kept",
				zap.String("run_id", c.store.Snapshot().RunID),
				zap.Error(err),
			)
		}
		return Ticket{}, err
	}
	c.logger.Debug("stage scheduled", zap.String("run_id", ticket.RunID), zap.Stringer("stage", stage))
	return ticket, nil
}

func (c *Controller) emit(t Ticket, kind progress.Kind, dur time.Duration, note string) {
	emitEvent(c.emitter, c.store, c.limiter, c.clock, t, kind, dur, note)
}

func validateInputs(req StartRequest) (brief.Inputs, error) {
	in := brief.Inputs{
		FocusKeyword: strings.TrimSpace(req.FocusKeyword),
		TopicTheme:   strings.TrimSpace(req.TopicTheme),
		BuyerPersona: strings.TrimSpace(req.BuyerPersona),
		ContentID:    strings.TrimSpace(req.ContentID),
	}
	if in.FocusKeyword == "" || in.TopicTheme == "" || in.BuyerPersona == "" {
		return brief.Inputs{}, &brief.ValidationError{Message: MissingInputsMessage}
	}
	if in.ContentID == "" {
		in.ContentID = brief.DeriveContentID(in.FocusKeyword)
	}
	return in, nil
}

func emitEvent(
	emitter progress.Emitter,
	store *Store,
	limiter *budget.Limiter,
	clock brief.Clock,
	t Ticket,
	kind progress.Kind,
	dur time.Duration,
	note string,
) {
	snap := store.Snapshot()
	evt := progress.Event{
		RunID:      t.RunID,
		TS:         clock.Now(),
		Kind:       kind,
		Step:       string(snap.Step),
		Progress:   snap.Progress,
		Dur:        dur,
		ModelCalls: limiter.Snapshot().CurrentCount,
		Note:       note,
	}
	if kind != progress.KindRunReset {
		evt.Stage = int(t.Stage)
	}
	emitter.Emit(evt)
}
