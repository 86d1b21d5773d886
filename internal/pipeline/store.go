package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/budget"
)

var runningMessages = map[brief.Stage]string{
	brief.StageSERPCollect:  "Step 1: Collecting top 10 SERP results...",
	brief.StageUGCResearch:  "Step 2: Conducting comprehensive UGC research...",
	brief.StageSERPAnalysis: "Step 3: Generating SERP analysis brief...",
	brief.StageCombine:      "Step 4: Generating final brief...",
}

// Ticket authorizes one stage execution to write its outcome.
type Ticket struct {
	Stage brief.Stage
	RunID string
	Token uint64
	// Budget is the limiter run model calls of this stage are charged to.
	Budget uint64

	ctx context.Context
}

// Context is canceled when the run the ticket belongs to is superseded. It
// carries the ticket's budget run.
func (t Ticket) Context() context.Context {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return budget.WithRun(ctx, t.Budget)
}

// priorRun is the run a stage-1 Begin replaced, kept until the new run's
// first task is scheduled.
type priorRun struct {
	state    brief.JobState
	calls    int
	inFlight bool
}

// Store guards the job state. The zero value is not usable; call NewStore.
type Store struct {
	mu      sync.RWMutex
	state   brief.JobState
	token   uint64
	current uint64

	base      context.Context
	runCtx    context.Context
	runCancel context.CancelFunc

	limiter   *budget.Limiter
	budgetRun uint64
	prior     *priorRun

	clock brief.Clock
	ids   brief.IDGenerator
}

// NewStore returns a Store in the idle state. Run contexts derive from base.
// Starting a run resets limiter under the store lock.
func NewStore(base context.Context, clock brief.Clock, ids brief.IDGenerator, limiter *budget.Limiter) *Store {
	if base == nil {
		base = context.Background()
	}
	if limiter == nil {
		limiter = budget.New(budget.Config{})
	}
	state := brief.NewJobState()
	state.UpdatedAt = clock.Now()
	return &Store{
		state:     state,
		base:      base,
		runCtx:    base,
		runCancel: func() {},
		limiter:   limiter,
		budgetRun: limiter.Run(),
		clock:     clock,
		ids:       ids,
	}
}

// Snapshot returns a copy of the current job state.
func (s *Store) Snapshot() brief.JobState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Begin moves the job into the in-flight step of stage and returns the ticket
// for the background execution. Stage 1 discards the previous run entirely
// and requires inputs; later stages require their predecessor step and leave
// the state untouched when it does not match.
func (s *Store) Begin(stage brief.Stage, inputs *brief.Inputs) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stage == brief.StageSERPCollect {
		if inputs == nil {
			return Ticket{}, &brief.ValidationError{Message: "stage 1 requires inputs"}
		}
		runID, err := s.ids.NewID()
		if err != nil {
			return Ticket{}, fmt.Errorf("mint run id: %w", err)
		}
		s.prior = &priorRun{
			state:    s.state,
			calls:    s.limiter.Snapshot().CurrentCount,
			inFlight: s.current != 0,
		}
		s.runCancel()
		s.runCtx, s.runCancel = context.WithCancel(s.base)
		s.budgetRun = s.limiter.Reset()

		next := brief.NewJobState()
		next.RunID = runID
		next.FocusKeyword = inputs.FocusKeyword
		next.TopicTheme = inputs.TopicTheme
		next.BuyerPersona = inputs.BuyerPersona
		next.ContentID = inputs.ContentID
		s.state = next
	} else if s.state.Step != stage.Requires() {
		return Ticket{}, &brief.SequenceError{Stage: stage, Required: stage - 1}
	} else {
		s.prior = nil
	}

	s.state.SetStep(stage.Running())
	s.state.Status = brief.StatusRunning
	s.state.Error = ""
	s.state.Message = runningMessages[stage]
	s.state.UpdatedAt = s.clock.Now()

	s.token++
	s.current = s.token
	return Ticket{Stage: stage, RunID: s.state.RunID, Token: s.token, Budget: s.budgetRun, ctx: s.runCtx}, nil
}

// Commit applies a successful stage outcome. apply fills in the outputs;
// step, progress, status and message are set here so they always move
// together.
func (s *Store) Commit(t Ticket, message string, apply func(*brief.JobState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCurrent(t) {
		return brief.ErrStaleTicket
	}
	if apply != nil {
		apply(&s.state)
	}
	s.state.SetStep(t.Stage.Completes())
	if t.Stage == brief.StageCombine {
		s.state.Status = brief.StatusCompleted
	} else {
		s.state.Status = brief.StatusRunning
	}
	s.state.Error = ""
	s.state.Message = message
	s.state.UpdatedAt = s.clock.Now()
	s.current = 0
	s.prior = nil
	return nil
}

// Fail records a stage failure and returns the job to the stage's
// predecessor step so the same stage can be requested again.
func (s *Store) Fail(t Ticket, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCurrent(t) {
		return brief.ErrStaleTicket
	}
	s.failLocked(t, cause)
	return nil
}

// Withdraw undoes Begin for a ticket whose task was never scheduled. A
// stage-1 ticket brings back the run it replaced, budget count included,
// when that run had no stage in flight; it reports true in that case.
// Otherwise the ticket fails as Fail would.
func (s *Store) Withdraw(t Ticket, cause error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCurrent(t) {
		return false, brief.ErrStaleTicket
	}
	if t.Stage == brief.StageSERPCollect && s.prior != nil && !s.prior.inFlight {
		s.state = s.prior.state
		s.limiter.Restore(s.budgetRun, s.prior.calls)
		s.current = 0
		s.prior = nil
		return true, nil
	}
	s.failLocked(t, cause)
	return false, nil
}

func (s *Store) failLocked(t Ticket, cause error) {
	s.state.SetStep(t.Stage.Requires())
	s.state.Status = brief.StatusError
	s.state.Error = cause.Error()
	s.state.Message = fmt.Sprintf("Step %d Error: %s", int(t.Stage), cause.Error())
	s.state.UpdatedAt = s.clock.Now()
	s.current = 0
	s.prior = nil
}

// Current reports whether t may still write.
func (s *Store) Current(t Ticket) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isCurrent(t)
}

// Close cancels the active run context.
func (s *Store) Close() {
	s.mu.Lock()
	s.runCancel()
	s.mu.Unlock()
}

func (s *Store) isCurrent(t Ticket) bool {
	return t.Token != 0 && t.Token == s.current && t.RunID == s.state.RunID
}
