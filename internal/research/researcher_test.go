package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/markdown"
	"github.com/JakeFAU/seo-brief-automator/internal/prompts"
)

type scriptedModel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []brief.CompletionRequest
}

func (m *scriptedModel) Complete(_ context.Context, req brief.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
}

func newResearcher(t *testing.T, model brief.ModelClient) *Researcher {
	t.Helper()
	r, err := New(model, markdown.New(), fixedClock{}, Config{AnalysisModel: "gpt-3.5-turbo"}, nil)
	require.NoError(t, err)
	return r
}

func TestResearchMakesTwoCalls(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{replies: []string{"## Key Questions Identified\n- How much to save?", "## Executive Summary\nSave more."}}
	r := newResearcher(t, model)

	out, err := r.Research(context.Background(), brief.ResearchRequest{
		FocusKeyword: "budget planning",
		TopicTheme:   "personal finance",
		BuyerPersona: "young professionals",
	})
	require.NoError(t, err)
	require.Len(t, model.requests, 2)
	require.Equal(t, 2500, model.requests[0].MaxTokens)
	require.InDelta(t, 0.7, model.requests[0].Temperature, 1e-9)
	require.Equal(t, 2000, model.requests[1].MaxTokens)
	require.Contains(t, model.requests[1].User, "How much to save?")

	require.Equal(t, "## Key Questions Identified\n- How much to save?", out.RawResponse)
	require.Equal(t, "## Executive Summary\nSave more.", out.AnalysisResponse)
	require.True(t, strings.HasPrefix(out.RawMarkdown, "# UGC Research Report: budget planning"))
	require.Contains(t, out.RawMarkdown, "June 01, 2025 at 09:30 AM")
	require.Contains(t, out.HTMLOutput, `<li class="custom-list-item">`)
}

func TestResearchPropagatesRateLimit(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{err: brief.ErrRateLimitExceeded}
	_, err := newResearcher(t, model).Research(context.Background(), brief.ResearchRequest{FocusKeyword: "x"})
	require.ErrorIs(t, err, brief.ErrRateLimitExceeded)
	require.Len(t, model.requests, 1)
}

func TestResearchRejectsEmptyReply(t *testing.T) {
	t.Parallel()

	_, err := newResearcher(t, &scriptedModel{replies: []string{"   "}}).Research(context.Background(), brief.ResearchRequest{})
	require.ErrorContains(t, err, "empty response")
}

func TestAnalyzeSERP(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{replies: []string{"**Budget 101**\n- Summary"}}
	results := []brief.SERPResult{
		{Title: "Budget 101", URL: "https://a.example"},
		{Title: "Saving Guide", URL: "https://b.example"},
		{Title: "", URL: "https://c.example"},
	}
	out, err := newResearcher(t, model).AnalyzeSERP(context.Background(), results, "budget planning", "")
	require.NoError(t, err)
	require.Equal(t, 2, out.ArticlesAnalyzed)
	require.Equal(t, "**Budget 101**\n- Summary", out.RawResponse)
	require.Equal(t, out.RawResponse, out.RawMarkdown)
	require.Contains(t, out.HTMLOutput, "<strong>Budget 101</strong>")

	req := model.requests[0]
	require.Equal(t, prompts.AnalysisSystem, req.System)
	require.Equal(t, 4000, req.MaxTokens)
	require.Equal(t, "gpt-3.5-turbo", req.Model)
	require.Contains(t, req.User, "2. Saving Guide - https://b.example")
}

func TestAnalyzeSERPError(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider down")
	_, err := newResearcher(t, &scriptedModel{err: boom}).AnalyzeSERP(context.Background(), nil, "k", "")
	require.ErrorIs(t, err, boom)
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, markdown.New(), fixedClock{}, Config{}, nil)
	require.Error(t, err)
}
