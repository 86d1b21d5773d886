package brief

import (
	"context"
	"time"
)

// CompletionRequest is a single model call.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	Model       string
}

// ModelClient issues chat-style completions. Every client handed to a stage
// must be gated by the call budget.
type ModelClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SERPFetcher returns up to limit organic results for keyword.
type SERPFetcher interface {
	Search(ctx context.Context, keyword string, limit int) ([]SERPResult, error)
}

// ResearchRequest carries the inputs of the UGC research stage.
type ResearchRequest struct {
	FocusKeyword string
	TopicTheme   string
	BuyerPersona string
	CustomPrompt string
}

// Researcher produces the UGC research document and the SERP analysis.
type Researcher interface {
	Research(ctx context.Context, req ResearchRequest) (StageOutput, error)
	AnalyzeSERP(ctx context.Context, results []SERPResult, keyword, customPrompt string) (StageOutput, error)
}

// Renderer turns markdown into HTML.
type Renderer interface {
	Render(markdown string) (string, error)
}

// DocumentSaver persists the combined record and returns its filename.
type DocumentSaver interface {
	Save(ctx context.Context, record CombinedRecord) (string, error)
}

// HistoryRecorder stores one row per completed run.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Publisher pushes completion events to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for saved documents.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
