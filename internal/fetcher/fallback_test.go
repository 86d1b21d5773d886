package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

type stubSearch struct {
	results []brief.SERPResult
	err     error
	calls   int
}

func (s *stubSearch) Search(context.Context, string, int) ([]brief.SERPResult, error) {
	s.calls++
	return s.results, s.err
}

func TestFallbackUsesPrimaryResults(t *testing.T) {
	t.Parallel()

	primary := &stubSearch{results: []brief.SERPResult{{Title: "A", URL: "https://a.example.com"}}}
	secondary := &stubSearch{}
	f := &Fallback{Primary: primary, Secondary: secondary}

	got, err := f.Search(context.Background(), "kw", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Zero(t, secondary.calls)
}

func TestFallbackPromotesOnRenderRequired(t *testing.T) {
	t.Parallel()

	primary := &stubSearch{err: fmt.Errorf("page: %w", ErrRenderRequired)}
	secondary := &stubSearch{results: []brief.SERPResult{{Title: "B", URL: "https://b.example.com"}}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	got, err := f.Search(context.Background(), "kw", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Title)
}

func TestFallbackPromotesOnEmptyResults(t *testing.T) {
	t.Parallel()

	secondary := &stubSearch{results: []brief.SERPResult{{Title: "B", URL: "https://b.example.com"}}}
	f := &Fallback{Primary: &stubSearch{}, Secondary: secondary}

	got, err := f.Search(context.Background(), "kw", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackReturnsUpstreamErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("status 503")
	secondary := &stubSearch{}
	f := &Fallback{Primary: &stubSearch{err: boom}, Secondary: secondary}

	_, err := f.Search(context.Background(), "kw", 10)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, secondary.calls)
}

func TestFallbackWithoutSecondary(t *testing.T) {
	t.Parallel()

	f := &Fallback{Primary: &stubSearch{err: ErrRenderRequired}}
	_, err := f.Search(context.Background(), "kw", 10)
	require.ErrorIs(t, err, ErrRenderRequired)
}
