// Package prompts holds the model prompts used by the research, analysis,
// and synthesis stages.
package prompts

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// MaxAnalyzedArticles caps the articles embedded in the SERP analysis prompt.
const MaxAnalyzedArticles = 10

// System prompts per call.
const (
	ResearchSystem = "You are an expert content researcher with deep knowledge of finance, FP&A, CFO concerns, " +
		"and industry trends. You have access to current information and can provide real-time insights."
	StrategySystem = "You are a content strategy expert specializing in SEO and content marketing for finance professionals."
	AnalysisSystem = "You are an expert content strategist and SEO analyst with deep knowledge of content analysis, " +
		"search intent, and competitive research."
	FinalSystem = "You are an expert SEO content writer specializing in creating comprehensive content briefs " +
		"for finance and business topics."
)

const researchTemplate = `You are an expert content researcher specializing in finance and business topics. I need you to conduct comprehensive research on "{keyword}" for a blog about "{theme}" targeting "{persona}".

Please research the following aspects and provide detailed findings:

1. **Platform Research**: Search across LinkedIn, Reddit (r/finance, r/FPandA, r/CFO), Quora, and Substack for recent discussions about {keyword}
2. **Question Analysis**: Identify specific questions that finance professionals are asking
3. **Pain Points**: Find common challenges and concerns
4. **Trending Topics**: Discover emerging themes and hot topics
5. **Industry Insights**: Gather insights from recent articles, discussions, and expert opinions

Please provide your findings in this structured format:

## Key Questions Identified
[List 8-12 specific questions that finance professionals are asking about {keyword}]

## Common Concerns & Challenges
[List 6-8 main concerns or pain points related to {keyword}]

## Trending Topics & Themes
[List 5-7 trending topics or themes in the {keyword} space]

## Industry Insights & Expert Opinions
[Share 4-6 key insights from industry experts and recent discussions]

## Content Opportunities
[Identify 3-5 specific content opportunities based on your research]

## Recent Developments
[Note any recent changes, updates, or new developments related to {keyword}]

Use clear, professional language and focus on actionable insights. Base your research on real discussions and current trends.`

const strategyTemplate = `Based on the research findings below, please provide a comprehensive analysis and actionable recommendations for content creation:

{research}

Please analyze this research and provide:

## Executive Summary
[A 2-3 sentence overview of the key findings]

## Content Strategy Recommendations
[3-4 specific recommendations for content creation]

## Target Audience Insights
[Detailed insights about what {persona} specifically needs]

## Competitive Analysis
[What gaps exist in current content about {keyword}]

## SEO Opportunities
[Specific keywords and topics to target]

## Content Format Suggestions
[Recommended content formats (guides, case studies, etc.)]

Format your response in clear markdown with proper headings and bullet points.`

// SERPAnalysisTemplate is the default 12-section competitor analysis brief.
const SERPAnalysisTemplate = `You are an expert content strategist.
I will give you a list of blog article URLs that rank on the first page of Google for a target keyword.
For each URL:
- Start with the blog title and URL in bold
- Then provide a structured analysis in bullet format under the following sections

Please follow this structure for each blog:
Blog Title: [Insert blog post title]
URL: [Insert blog post URL]
1. Summary of the Article
   - Brief overview of what the article covers.
2. Search Intent Covered
   - What is the primary search intent (Informational, Navigational, Transactional, Commercial)?
   - How well does it fulfill that intent?
3. Subtopics Covered
   - Bullet list of all key sections or talking points.
4. Depth of Coverage
   - Is the content shallow, moderate, or deep?
   - What's covered in detail vs only skimmed?
5. What's Missing
   - Gaps in logic, unexplored ideas, missing data/examples/frameworks.
6. Tone & Point of View
   - Describe the tone (e.g., expert, conversational, tactical).
   - Is there a distinct point of view or is it generic?
7. Structure
   - Type of article (e.g., guide, listicle, editorial).
   - Include the full H1, and a list of H2s and H3s (if present).
8. SEO Signals
   - Is the primary keyword used in title, H1, intro, and headers?
   - Mention 7-10 semantically related keywords used (if any).
   - Describe internal and external linking strategy.
9. Use of Visuals
   - What types of visuals are used (if any)?
   - Are they helpful, decorative, or generic?
10. Unique Hooks or Contrarian Angles
   - Any standout story, metaphor, framework, or angle?
11. Opportunities to Differentiate
   - What can be improved: stronger POV, richer examples, deeper insights, visual storytelling, etc.?
12. Word Count
   - Estimated total word count of the article.`

// DefaultFinalInstructions is used when stage 4 receives no custom prompt.
const DefaultFinalInstructions = `Using the UGC research and SERP analysis documents below, write a complete SEO content brief for the focus keyword "{keyword}" aimed at {persona} on a blog about {theme}.

Include:
- 5 title suggestions and a meta description under 160 characters
- Primary and secondary keywords
- A full outline with H2 and H3 headings and notes for each section
- The reader questions the article must answer
- Gaps in the ranking articles this piece should fill
- Recommended word count, tone, and internal/external linking ideas

Format the brief in markdown.`

// Research builds the UGC research prompt. A non-blank custom prompt replaces
// the default template.
func Research(req brief.ResearchRequest) string {
	if custom := strings.TrimSpace(req.CustomPrompt); custom != "" {
		return custom
	}
	return fill(researchTemplate, req.FocusKeyword, req.TopicTheme, req.BuyerPersona)
}

// Strategy builds the follow-up analysis prompt over the research text.
func Strategy(research string, req brief.ResearchRequest) string {
	out := fill(strategyTemplate, req.FocusKeyword, req.TopicTheme, req.BuyerPersona)
	return strings.Replace(out, "{research}", research, 1)
}

// ArticleList formats up to MaxAnalyzedArticles results with a title and an
// http(s) URL as "N. Title - URL" lines. It returns the count embedded.
func ArticleList(results []brief.SERPResult) (string, int) {
	lines := make([]string, 0, MaxAnalyzedArticles)
	for _, r := range results {
		title := strings.TrimSpace(r.Title)
		url := strings.TrimSpace(r.URL)
		if title == "" || !strings.HasPrefix(url, "http") {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s", len(lines)+1, title, url))
		if len(lines) == MaxAnalyzedArticles {
			break
		}
	}
	return strings.Join(lines, "\n"), len(lines)
}

// SERPAnalysis builds the competitor analysis prompt. A non-blank custom
// prompt replaces the default template; the article list is always appended.
func SERPAnalysis(results []brief.SERPResult, keyword, customPrompt string) (string, int) {
	template := SERPAnalysisTemplate
	if custom := strings.TrimSpace(customPrompt); custom != "" {
		template = custom
	}
	list, count := ArticleList(results)
	if count == 0 {
		list = "(No ranking articles were found for this keyword. Describe what a first-page article would need to cover instead.)"
	}
	prompt := fmt.Sprintf("%s\n\nNow, analyze the following articles for the keyword %q:\n\n%s\n\n"+
		"Please provide a comprehensive analysis for each article following the structure above. "+
		"Format your response in markdown with headings, bullet points, and bold for key points.",
		template, keyword, list)
	return prompt, count
}

// Final composes the synthesis prompt from the custom instructions and the
// two research documents.
func Final(customPrompt string, inputs brief.Inputs, ugcResearch, serpAnalysis string) string {
	instructions := strings.TrimSpace(customPrompt)
	if instructions == "" {
		instructions = fill(DefaultFinalInstructions, inputs.FocusKeyword, inputs.TopicTheme, inputs.BuyerPersona)
	}
	if strings.TrimSpace(ugcResearch) == "" {
		ugcResearch = "No UGC research available"
	}
	if strings.TrimSpace(serpAnalysis) == "" {
		serpAnalysis = "No SERP analysis available"
	}
	return fmt.Sprintf("%s\n\nUGC Research Document:\n%s\n\nSERP Analysis Document:\n%s", instructions, ugcResearch, serpAnalysis)
}

// UGCReport assembles the combined research document.
func UGCReport(keyword, research, strategy, generated string) string {
	return fmt.Sprintf("# UGC Research Report: %s\n\n## Research Findings\n%s\n\n---\n\n## Strategic Analysis\n%s\n\n---\n*Generated on %s*\n",
		keyword, research, strategy, generated)
}

func fill(template, keyword, theme, persona string) string {
	return strings.NewReplacer(
		"{keyword}", keyword,
		"{theme}", theme,
		"{persona}", persona,
	).Replace(template)
}
