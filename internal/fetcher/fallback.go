package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// ErrRenderRequired marks a results page whose static HTML needs a headless
// render before results can be read.
var ErrRenderRequired = errors.New("results page requires rendering")

// Fallback searches with Primary and promotes to Secondary when Primary finds
// nothing or reports ErrRenderRequired. Other Primary errors are returned
// unchanged.
type Fallback struct {
	Primary   brief.SERPFetcher
	Secondary brief.SERPFetcher
	Logger    *zap.Logger
}

var _ brief.SERPFetcher = (*Fallback)(nil)

// Search implements brief.SERPFetcher.
func (f *Fallback) Search(ctx context.Context, keyword string, limit int) ([]brief.SERPResult, error) {
	results, err := f.Primary.Search(ctx, keyword, limit)
	switch {
	case err == nil && len(results) > 0:
		return results, nil
	case err != nil && !errors.Is(err, ErrRenderRequired):
		return nil, err
	case f.Secondary == nil:
		return results, err
	}
	if f.Logger != nil {
		f.Logger.Info("promoting search to headless render",
			zap.String("keyword", keyword),
			zap.NamedError("primary_error", err),
		)
	}
	results, err = f.Secondary.Search(ctx, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("headless fallback: %w", err)
	}
	return results, nil
}
