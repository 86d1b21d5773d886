// Package serpapi fetches Google organic results through the SerpAPI JSON API.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/fetcher"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
)

// DefaultBaseURL is the public SerpAPI root.
const DefaultBaseURL = "https://serpapi.com"

// Config controls the client.
type Config struct {
	APIKey   string
	BaseURL  string
	Engine   string
	Language string
	Country  string
	Timeout  time.Duration
}

// Client implements brief.SERPFetcher.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *zap.Logger
}

var _ brief.SERPFetcher = (*Client)(nil)

type searchResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position      int    `json:"position"`
		Title         string `json:"title"`
		Link          string `json:"link"`
		Snippet       string `json:"snippet"`
		DisplayedLink string `json:"displayed_link"`
	} `json:"organic_results"`
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("serpapi api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = "google"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)
	return &Client{http: httpClient, cfg: cfg, logger: logger}, nil
}

// Search returns up to limit organic results for keyword.
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]brief.SERPResult, error) {
	if limit <= 0 {
		limit = 10
	}
	var out searchResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":  c.cfg.Engine,
			"q":       keyword,
			"hl":      c.cfg.Language,
			"gl":      c.cfg.Country,
			"num":     strconv.Itoa(limit),
			"api_key": c.cfg.APIKey,
		}).
		SetHeader("Accept", "application/json").
		Get("/search.json")
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}
	// Decoded by hand: resty only fills SetResult for JSON content types.
	decodeErr := json.Unmarshal(res.Body(), &out)
	if res.IsError() {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(res.Body()))
		}
		return nil, fmt.Errorf("serpapi: status %d: %s", res.StatusCode(), msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", out.Error)
	}

	results := make([]brief.SERPResult, 0, len(out.OrganicResults))
	for _, r := range out.OrganicResults {
		domain := r.DisplayedLink
		if domain == "" {
			if u, err := url.Parse(r.Link); err == nil {
				domain = u.Hostname()
			}
		}
		results = append(results, brief.SERPResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Domain:  domain,
		})
	}
	results = fetcher.Truncate(results, limit)
	metrics.ObserveSERPResults("serpapi", fetcher.URLs(results))
	c.logger.Debug("serpapi search",
		zap.String("keyword", keyword),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", res.Time()),
	)
	return results, nil
}
