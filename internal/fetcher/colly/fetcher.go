// Package collyfetcher scrapes an HTML search results page with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/fetcher"
	"github.com/JakeFAU/seo-brief-automator/internal/fetcher/htmlparse"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	SearchURL string
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
	// Detector, when set, flags empty pages that need a headless render.
	Detector RenderDetector
	Pacer    fetcher.Pacer
}

// RenderDetector decides whether a fetched page needs a headless render.
type RenderDetector interface {
	ShouldPromote(status int, body []byte) bool
}

// Fetcher implements brief.SERPFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

var _ brief.SERPFetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	status int
	body   []byte
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// Search loads the configured results page for keyword and parses it.
func (f *Fetcher) Search(ctx context.Context, keyword string, limit int) ([]brief.SERPResult, error) {
	target := fetcher.SearchURL(f.cfg.SearchURL, keyword)
	if f.cfg.Pacer != nil {
		if err := f.cfg.Pacer.Wait(ctx, target); err != nil {
			return nil, err
		}
	}
	var (
		result   page
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return nil, err
	}
	results, err := htmlparse.Parse(result.body)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && f.cfg.Detector != nil && f.cfg.Detector.ShouldPromote(result.status, result.body) {
		return nil, fmt.Errorf("%s: %w", target, fetcher.ErrRenderRequired)
	}
	results = fetcher.Truncate(results, limit)
	metrics.ObserveSERPResults("colly", fetcher.URLs(results))
	f.logger.Debug("colly search",
		zap.String("keyword", keyword),
		zap.Int("status", result.status),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (f *Fetcher) buildCollector(result *page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, v := range f.cfg.Headers {
			r.Headers.Set(key, v)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly search canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
