package brief

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Inputs are the user-supplied fields captured by stage 1.
type Inputs struct {
	FocusKeyword string `json:"focus_keyword"`
	TopicTheme   string `json:"topic_theme"`
	BuyerPersona string `json:"buyer_persona"`
	ContentID    string `json:"content_id"`
}

// SERPResult is one organic search result.
type SERPResult struct {
	Position int    `json:"position,omitempty"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Domain   string `json:"domain"`
}

// StageOutput is the record produced by a research, analysis, or synthesis stage.
// Outputs are immutable once committed to job state.
type StageOutput struct {
	RawResponse      string    `json:"raw_response"`
	RawMarkdown      string    `json:"raw_markdown"`
	HTMLOutput       string    `json:"html_output"`
	AnalysisResponse string    `json:"analysis_response,omitempty"`
	CustomPrompt     string    `json:"custom_prompt,omitempty"`
	ArticlesAnalyzed int       `json:"articles_analyzed,omitempty"`
	Filename         string    `json:"filename,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// SERPSummary is the search-result section of the combined record.
type SERPSummary struct {
	ArticlesFound int          `json:"articles_found"`
	Articles      []SERPResult `json:"articles"`
}

// CombinedRecord is the persisted artifact of a completed run.
type CombinedRecord struct {
	RunID        string       `json:"run_id"`
	FocusKeyword string       `json:"focus_keyword"`
	TopicTheme   string       `json:"topic_theme"`
	BuyerPersona string       `json:"buyer_persona"`
	ContentID    string       `json:"content_id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	Status       string       `json:"status"`
	SERPAnalysis SERPSummary  `json:"serp_analysis"`
	UGCResearch  *StageOutput `json:"ugc_research"`
	SERPBrief    *StageOutput `json:"serp_brief"`
	FinalBrief   *StageOutput `json:"final_brief"`
	BriefContent string       `json:"brief_content"`
	ContentHash  string       `json:"content_hash,omitempty"`
}

// APIStatus reports the model-call budget.
type APIStatus struct {
	CurrentCount int  `json:"current_count"`
	MaxRequests  int  `json:"max_requests"`
	LimitReached bool `json:"limit_reached"`
}

// JobState is the single mutable record describing the current run.
type JobState struct {
	RunID        string          `json:"run_id"`
	Status       Status          `json:"status"`
	Step         Step            `json:"step"`
	Progress     int             `json:"progress"`
	Message      string          `json:"message"`
	Error        string          `json:"error"`
	FocusKeyword string          `json:"focus_keyword"`
	TopicTheme   string          `json:"topic_theme"`
	BuyerPersona string          `json:"buyer_persona"`
	ContentID    string          `json:"content_id"`
	SERPResults  []SERPResult    `json:"serp_results"`
	UGCBrief     *StageOutput    `json:"ugc_brief"`
	SERPBrief    *StageOutput    `json:"serp_brief"`
	FinalBrief   *StageOutput    `json:"final_brief"`
	Result       *CombinedRecord `json:"result"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJobState returns the idle state.
func NewJobState() JobState {
	return JobState{
		Status:      StatusIdle,
		Step:        StepIdle,
		Progress:    StepIdle.Progress(),
		Message:     "Ready",
		SERPResults: []SERPResult{},
	}
}

// Inputs returns the captured stage-1 inputs.
func (s JobState) Inputs() Inputs {
	return Inputs{
		FocusKeyword: s.FocusKeyword,
		TopicTheme:   s.TopicTheme,
		BuyerPersona: s.BuyerPersona,
		ContentID:    s.ContentID,
	}
}

// SetStep moves the job to step and updates progress with it.
func (s *JobState) SetStep(step Step) {
	s.Step = step
	s.Progress = step.Progress()
}

// Clone returns a copy safe to hand to readers. Stage outputs are shared
// because they are never mutated after commit.
func (s JobState) Clone() JobState {
	cp := s
	cp.SERPResults = make([]SERPResult, len(s.SERPResults))
	copy(cp.SERPResults, s.SERPResults)
	return cp
}

// Output returns the stage output stored for stage, if any.
func (s JobState) Output(stage Stage) *StageOutput {
	switch stage {
	case StageUGCResearch:
		return s.UGCBrief
	case StageSERPAnalysis:
		return s.SERPBrief
	case StageCombine:
		return s.FinalBrief
	default:
		return nil
	}
}

// DeriveContentID builds the short identifier used in brief filenames: the
// first three characters of the keyword upper-cased followed by its length.
func DeriveContentID(keyword string) string {
	keyword = strings.TrimSpace(keyword)
	prefix := keyword
	if utf8.RuneCountInString(prefix) > 3 {
		prefix = string([]rune(prefix)[:3])
	}
	return strings.ToUpper(prefix) + strconv.Itoa(utf8.RuneCountInString(keyword))
}

// RunSummary is the row recorded in run history when a brief completes.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	ContentID    string    `json:"content_id"`
	FocusKeyword string    `json:"focus_keyword"`
	TopicTheme   string    `json:"topic_theme"`
	BuyerPersona string    `json:"buyer_persona"`
	Filename     string    `json:"filename"`
	ContentHash  string    `json:"content_hash"`
	SERPCount    int       `json:"serp_count"`
	ModelCalls   int       `json:"model_calls"`
	CompletedAt  time.Time `json:"completed_at"`
}

// CompletedEvent is published when a run's final brief has been saved.
type CompletedEvent struct {
	RunID        string    `json:"run_id"`
	ContentID    string    `json:"content_id"`
	FocusKeyword string    `json:"focus_keyword"`
	Filename     string    `json:"filename"`
	CompletedAt  time.Time `json:"completed_at"`
}
