package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://search.example/html?q=a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://search.example/html?q=b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 1, l.Hosts())
}

func TestLimiterSeparatesHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.example/"))
	require.NoError(t, l.Wait(ctx, "https://b.example/"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.example/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow.example")
}

func TestLimiterUnlimitedWhenRateUnset(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(ctx, "https://fast.example/"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "html.duckduckgo.com", Host("https://html.duckduckgo.com/html/?q=x"))
	assert.Equal(t, "unknown", Host("::not a url"))
	assert.Equal(t, "unknown", Host(""))
}
