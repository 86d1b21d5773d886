package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}, nil); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	f, err := NewChromedp(Config{MaxParallel: 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(f.Close)
	if cap(f.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(f.limiter))
	}
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	if got := f.navTimeout(); got != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	f.cfg.NavigationTimeout = time.Second
	if got := f.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestDocumentStatusIgnoresSubresources(t *testing.T) {
	t.Parallel()

	d := &documentStatus{}
	d.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	if d.get() != 0 {
		t.Fatalf("expected subresource to be ignored, got %d", d.get())
	}
	d.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 429},
	})
	if d.get() != 429 {
		t.Fatalf("expected document status 429, got %d", d.get())
	}
	d.captureEvent("not an event")
	if d.get() != 429 {
		t.Fatalf("unexpected status change: %d", d.get())
	}
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	h := toNetworkHeaders(map[string]string{"Accept-Language": "en-US"})
	if h["Accept-Language"] != "en-US" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{limiter: make(chan struct{}, 1)}
	if err := f.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.acquire(ctx); err == nil {
		t.Fatal("expected canceled acquire to fail")
	}
	f.release()
	if err := f.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
