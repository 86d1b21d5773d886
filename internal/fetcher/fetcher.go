// Package fetcher holds helpers shared by the SERP collaborator
// implementations in its subpackages.
package fetcher

import (
	"context"
	"net/url"
	"strings"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// DefaultSearchURL is the HTML results page used by the scraping fetchers.
const DefaultSearchURL = "https://html.duckduckgo.com/html/?q={query}"

// Pacer delays a fetch until the target host may be contacted again.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// SearchURL substitutes the escaped keyword into template. Templates without
// a {query} placeholder get a q parameter appended.
func SearchURL(template, keyword string) string {
	if template == "" {
		template = DefaultSearchURL
	}
	escaped := url.QueryEscape(strings.TrimSpace(keyword))
	if strings.Contains(template, "{query}") {
		return strings.ReplaceAll(template, "{query}", escaped)
	}
	sep := "?"
	if strings.Contains(template, "?") {
		sep = "&"
	}
	return template + sep + "q=" + escaped
}

// Truncate keeps the first limit results and renumbers positions from 1.
func Truncate(results []brief.SERPResult, limit int) []brief.SERPResult {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]brief.SERPResult, len(results))
	for i, r := range results {
		r.Position = i + 1
		out[i] = r
	}
	return out
}

// URLs returns the result URLs.
func URLs(results []brief.SERPResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.URL)
	}
	return out
}
