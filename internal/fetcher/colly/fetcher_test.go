package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/seo-brief-automator/internal/fetcher"
	"github.com/JakeFAU/seo-brief-automator/internal/headless/detector"
)

const resultsPage = `<html><body>
<div class="result"><a class="result__a" href="https://example.com/one">One</a><a class="result__snippet">First.</a></div>
<div class="result"><a class="result__a" href="https://example.com/two">Two</a></div>
<div class="result"><a class="result__a" href="https://example.com/three">Three</a></div>
</body></html>`

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil)
	collector := f.buildCollector(&page{}, new(error))
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored for search pages")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: map[string]string{"Accept-Language": "en-US"}}, nil)
	var result page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("Accept-Language") != "en-US" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	if result.status != http.StatusOK || string(result.body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("Forbidden"))
	if fetchErr == nil || fetchErr.Error() != "status 403: Forbidden" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestSearchParsesResultsPage(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultsPage))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{SearchURL: srv.URL + "/html/?q={query}"}, nil)
	results, err := f.Search(context.Background(), "budget tips", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "budget tips" {
		t.Fatalf("expected query to reach server, got %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].URL != "https://example.com/one" || results[0].Snippet != "First." || results[1].Position != 2 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchReportsHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{SearchURL: srv.URL}, nil)
	if _, err := f.Search(context.Background(), "x", 10); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestSearchFlagsScriptRenderedPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="__next"></div><script>boot()</script></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{SearchURL: srv.URL, Detector: detector.NewHeuristic(0)}, nil)
	_, err := f.Search(context.Background(), "x", 10)
	if !errors.Is(err, fetcher.ErrRenderRequired) {
		t.Fatalf("expected ErrRenderRequired, got %v", err)
	}

	plain := New(Config{SearchURL: srv.URL}, nil)
	results, err := plain.Search(context.Background(), "x", 10)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty results without detector, got %v, %v", results, err)
	}
}

type recordingPacer struct {
	urls []string
	err  error
}

func (p *recordingPacer) Wait(_ context.Context, rawURL string) error {
	p.urls = append(p.urls, rawURL)
	return p.err
}

func TestSearchWaitsOnPacer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(resultsPage))
	}))
	t.Cleanup(srv.Close)

	pacer := &recordingPacer{}
	f := New(Config{SearchURL: srv.URL + "/html/?q={query}", Pacer: pacer}, nil)
	if _, err := f.Search(context.Background(), "tax brackets", 10); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(pacer.urls) != 1 || pacer.urls[0] != srv.URL+"/html/?q=tax+brackets" {
		t.Fatalf("unexpected pacer calls: %v", pacer.urls)
	}

	blocked := New(Config{SearchURL: srv.URL, Pacer: &recordingPacer{err: context.DeadlineExceeded}}, nil)
	if _, err := blocked.Search(context.Background(), "x", 10); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected pacer error, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected blocked search to skip the request, got %d hits", n)
	}
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
