// Package htmlparse extracts organic results from search-engine HTML pages.
package htmlparse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// Parse reads organic results from a DuckDuckGo HTML page or a Google-style
// results page. Ads, duplicates, and non-http links are skipped.
func Parse(body []byte) ([]brief.SERPResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	var results []brief.SERPResult
	seen := map[string]struct{}{}
	add := func(r brief.SERPResult) {
		r.Title = collapse(r.Title)
		r.Snippet = collapse(r.Snippet)
		if r.Title == "" || !strings.HasPrefix(r.URL, "http") {
			return
		}
		if _, dup := seen[r.URL]; dup {
			return
		}
		seen[r.URL] = struct{}{}
		if r.Domain == "" {
			r.Domain = hostOf(r.URL)
		}
		r.Position = len(results) + 1
		results = append(results, r)
	}

	doc.Find("div.result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		link := s.Find("a.result__a").First()
		href, _ := link.Attr("href")
		add(brief.SERPResult{
			Title:   link.Text(),
			URL:     unwrapRedirect(href),
			Snippet: s.Find(".result__snippet").First().Text(),
			Domain:  collapse(s.Find(".result__url").First().Text()),
		})
	})
	if len(results) > 0 {
		return results, nil
	}

	doc.Find("div.g").Each(func(_ int, s *goquery.Selection) {
		heading := s.Find("h3").First()
		link := heading.Closest("a")
		if link.Length() == 0 {
			link = s.Find("a[href]").First()
		}
		href, _ := link.Attr("href")
		add(brief.SERPResult{
			Title:   heading.Text(),
			URL:     unwrapRedirect(href),
			Snippet: s.Find("div.VwiC3b, span.aCOpRe, div[data-sncf]").First().Text(),
			Domain:  collapse(s.Find("cite").First().Text()),
		})
	})
	return results, nil
}

// unwrapRedirect resolves tracking links such as //duckduckgo.com/l/?uddg=...
// and /url?q=... to their destination.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	q := u.Query()
	for _, key := range []string{"uddg", "q", "url"} {
		if target := q.Get(key); strings.HasPrefix(target, "http") && (u.Path == "/l/" || u.Path == "/url") {
			return target
		}
	}
	return href
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
