// Package research produces the UGC research document and the SERP
// competitor analysis by prompting a budget-gated model client.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/prompts"
)

// Call parameters per prompt.
const (
	researchMaxTokens   = 2500
	researchTemperature = 0.7
	strategyMaxTokens   = 2000
	strategyTemperature = 0.6
	analysisMaxTokens   = 4000
	analysisTemperature = 0.3
)

// Config selects models per call. Empty values use the client default.
type Config struct {
	ResearchModel string
	AnalysisModel string
}

// Researcher implements brief.Researcher.
type Researcher struct {
	model    brief.ModelClient
	renderer brief.Renderer
	clock    brief.Clock
	cfg      Config
	logger   *zap.Logger
}

var _ brief.Researcher = (*Researcher)(nil)

// New builds a Researcher. model must already be gated by the call budget.
func New(model brief.ModelClient, renderer brief.Renderer, clock brief.Clock, cfg Config, logger *zap.Logger) (*Researcher, error) {
	if model == nil || renderer == nil || clock == nil {
		return nil, errors.New("model, renderer, and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Researcher{model: model, renderer: renderer, clock: clock, cfg: cfg, logger: logger}, nil
}

// Research runs the research prompt followed by a strategy analysis of its
// findings and combines both into one report.
func (r *Researcher) Research(ctx context.Context, req brief.ResearchRequest) (brief.StageOutput, error) {
	findings, err := r.complete(ctx, brief.CompletionRequest{
		System:      prompts.ResearchSystem,
		User:        prompts.Research(req),
		MaxTokens:   researchMaxTokens,
		Temperature: researchTemperature,
		Model:       r.cfg.ResearchModel,
	})
	if err != nil {
		return brief.StageOutput{}, fmt.Errorf("ugc research: %w", err)
	}
	strategy, err := r.complete(ctx, brief.CompletionRequest{
		System:      prompts.StrategySystem,
		User:        prompts.Strategy(findings, req),
		MaxTokens:   strategyMaxTokens,
		Temperature: strategyTemperature,
		Model:       r.cfg.ResearchModel,
	})
	if err != nil {
		return brief.StageOutput{}, fmt.Errorf("ugc strategy analysis: %w", err)
	}

	now := r.clock.Now()
	report := prompts.UGCReport(req.FocusKeyword, findings, strategy, now.Format("January 02, 2006 at 03:04 PM"))
	html, err := r.renderer.Render(report)
	if err != nil {
		return brief.StageOutput{}, err
	}
	r.logger.Info("ugc research complete",
		zap.String("focus_keyword", req.FocusKeyword),
		zap.Int("research_chars", len(findings)),
		zap.Int("strategy_chars", len(strategy)),
	)
	return brief.StageOutput{
		RawResponse:      findings,
		RawMarkdown:      report,
		HTMLOutput:       html,
		AnalysisResponse: strategy,
		CustomPrompt:     strings.TrimSpace(req.CustomPrompt),
		GeneratedAt:      now,
	}, nil
}

// AnalyzeSERP asks the model for a structured analysis of the ranking
// articles. An empty result list still produces an analysis.
func (r *Researcher) AnalyzeSERP(
	ctx context.Context,
	results []brief.SERPResult,
	keyword, customPrompt string,
) (brief.StageOutput, error) {
	prompt, count := prompts.SERPAnalysis(results, keyword, customPrompt)
	text, err := r.complete(ctx, brief.CompletionRequest{
		System:      prompts.AnalysisSystem,
		User:        prompt,
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
		Model:       r.cfg.AnalysisModel,
	})
	if err != nil {
		return brief.StageOutput{}, fmt.Errorf("serp analysis: %w", err)
	}
	html, err := r.renderer.Render(text)
	if err != nil {
		return brief.StageOutput{}, err
	}
	r.logger.Info("serp analysis complete", zap.String("focus_keyword", keyword), zap.Int("articles", count))
	return brief.StageOutput{
		RawResponse:      text,
		RawMarkdown:      text,
		HTMLOutput:       html,
		CustomPrompt:     strings.TrimSpace(customPrompt),
		ArticlesAnalyzed: count,
		GeneratedAt:      r.clock.Now(),
	}, nil
}

func (r *Researcher) complete(ctx context.Context, req brief.CompletionRequest) (string, error) {
	text, err := r.model.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("model returned an empty response")
	}
	return text, nil
}
