package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/budget"
	"github.com/JakeFAU/seo-brief-automator/internal/markdown"
	"github.com/JakeFAU/seo-brief-automator/internal/progress"
	"github.com/JakeFAU/seo-brief-automator/internal/prompts"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type fakeSERP struct {
	results []brief.SERPResult
	err     error
	calls   int
}

func (f *fakeSERP) Search(_ context.Context, _ string, _ int) ([]brief.SERPResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// modelResearcher issues its calls through the guarded model so the budget is
// exercised the way the real researcher does.
type modelResearcher struct {
	model brief.ModelClient
}

func (m *modelResearcher) Research(ctx context.Context, req brief.ResearchRequest) (brief.StageOutput, error) {
	text, err := m.model.Complete(ctx, brief.CompletionRequest{System: prompts.ResearchSystem, User: prompts.Research(req)})
	if err != nil {
		return brief.StageOutput{}, err
	}
	return brief.StageOutput{RawResponse: text, RawMarkdown: text, HTMLOutput: "<p>" + text + "</p>", CustomPrompt: req.CustomPrompt}, nil
}

func (m *modelResearcher) AnalyzeSERP(ctx context.Context, results []brief.SERPResult, keyword, custom string) (brief.StageOutput, error) {
	prompt, count := prompts.SERPAnalysis(results, keyword, custom)
	text, err := m.model.Complete(ctx, brief.CompletionRequest{System: prompts.AnalysisSystem, User: prompt})
	if err != nil {
		return brief.StageOutput{}, err
	}
	return brief.StageOutput{RawResponse: text, RawMarkdown: text, ArticlesAnalyzed: count}, nil
}

// twoCallResearcher follows a research call with an analysis call, the
// way the production researcher does.
type twoCallResearcher struct {
	modelResearcher
}

func (r *twoCallResearcher) Research(ctx context.Context, req brief.ResearchRequest) (brief.StageOutput, error) {
	out, err := r.modelResearcher.Research(ctx, req)
	if err != nil {
		return brief.StageOutput{}, err
	}
	analysis, err := r.model.Complete(ctx, brief.CompletionRequest{System: prompts.AnalysisSystem, User: out.RawResponse})
	if err != nil {
		return brief.StageOutput{}, err
	}
	out.AnalysisResponse = analysis
	return out, nil
}

// gatedModel holds its first call until release is closed, ignoring the
// caller's context like a provider that never notices cancellation.
type gatedModel struct {
	next    brief.ModelClient
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedModel) Complete(ctx context.Context, req brief.CompletionRequest) (string, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.next.Complete(ctx, req)
}

// scriptedModel answers with a canned reply per system prompt, echoing the
// article titles it was given for analysis calls.
type scriptedModel struct {
	mu       sync.Mutex
	calls    int
	failNext error
	requests []brief.CompletionRequest
}

func (m *scriptedModel) Complete(_ context.Context, req brief.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return "", err
	}
	switch req.System {
	case prompts.ResearchSystem:
		return "Reddit threads show CFOs struggle with rolling forecasts.", nil
	case prompts.AnalysisSystem:
		var titles []string
		for _, line := range strings.Split(req.User, "\n") {
			if idx := strings.Index(line, ". "); idx > 0 && strings.Contains(line, " - http") {
				titles = append(titles, strings.SplitN(line[idx+2:], " - ", 2)[0])
			}
		}
		return "Competitors covered: " + strings.Join(titles, "; "), nil
	case prompts.FinalSystem:
		return "# Budget Planning Brief\n\n- Audience: CFO\n- Angle: FP&A", nil
	default:
		return "ok", nil
	}
}

func (m *scriptedModel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memSaver struct {
	mu      sync.Mutex
	records []brief.CombinedRecord
	err     error
}

func (s *memSaver) Save(_ context.Context, record brief.CombinedRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.records = append(s.records, record)
	return fmt.Sprintf("brief_%s_%d.json", record.ContentID, len(s.records)), nil
}

type staticHasher struct{}

func (staticHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("len:%d", len(data)), nil
}

type memHistory struct {
	mu   sync.Mutex
	runs []brief.RunSummary
}

func (h *memHistory) RecordRun(_ context.Context, run brief.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return nil
}

func (h *memHistory) ListRuns(_ context.Context, _ int) ([]brief.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]brief.RunSummary(nil), h.runs...), nil
}

type memPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *memPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) kinds() []progress.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// captureQueue holds tasks so tests decide when stages execute.
type captureQueue struct {
	mu    sync.Mutex
	tasks []StageTask
	err   error
}

func (q *captureQueue) Enqueue(_ context.Context, task StageTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *captureQueue) pop(t *testing.T) StageTask {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.tasks, "no task queued")
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

type harness struct {
	store      *Store
	limiter    *budget.Limiter
	controller *Controller
	runner     *Runner
	queue      *captureQueue
	serp       *fakeSERP
	model      *scriptedModel
	saver      *memSaver
	history    *memHistory
	publisher  *memPublisher
	emitter    *recordingEmitter
}

func newHarness(t *testing.T, maxRequests int) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	h := &harness{
		limiter: budget.New(budget.Config{MaxRequests: maxRequests}),
		queue:   &captureQueue{},
		serp: &fakeSERP{results: []brief.SERPResult{
			{Position: 1, Title: "Budget Planning Guide", URL: "https://a.example/guide", Domain: "a.example"},
			{Position: 2, Title: "FP&A Budget Template", URL: "https://b.example/template", Domain: "b.example"},
			{Position: 3, Title: "CFO Planning Checklist", URL: "https://c.example/checklist", Domain: "c.example"},
		}},
		model:     &scriptedModel{},
		saver:     &memSaver{},
		history:   &memHistory{},
		publisher: &memPublisher{},
		emitter:   &recordingEmitter{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.store = NewStore(ctx, clock, &seqIDs{}, h.limiter)
	guarded := budget.Guard(h.model, h.limiter, nil)
	h.controller = NewController(h.store, h.limiter, h.queue, h.emitter, clock, nil)
	runner, err := NewRunner(h.store, h.limiter, Collaborators{
		SERP:       h.serp,
		Researcher: &modelResearcher{model: guarded},
		Model:      guarded,
		Renderer:   markdown.New(),
		Saver:      h.saver,
		Hasher:     staticHasher{},
		Clock:      clock,
		History:    h.history,
		Publisher:  h.publisher,
		Emitter:    h.emitter,
	}, RunnerConfig{CompletedTopic: "briefs"}, nil)
	require.NoError(t, err)
	h.runner = runner
	return h
}

var defaultRequest = StartRequest{FocusKeyword: "budget planning", TopicTheme: "FP&A", BuyerPersona: "CFO"}

// step starts stage and runs its queued task to completion.
func (h *harness) step(t *testing.T, stage brief.Stage, req StartRequest) error {
	t.Helper()
	_, err := h.controller.StartStage(context.Background(), stage, req)
	require.NoError(t, err)
	return h.runner.Run(context.Background(), h.queue.pop(t))
}

func (h *harness) runThrough(t *testing.T, last brief.Stage) {
	t.Helper()
	for _, stage := range brief.Stages {
		if stage > last {
			return
		}
		req := StartRequest{}
		if stage == brief.StageSERPCollect {
			req = defaultRequest
		}
		require.NoError(t, h.step(t, stage, req))
	}
}

var errBoom = errors.New("upstream exploded")
