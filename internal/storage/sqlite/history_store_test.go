package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

func TestRecordAndListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, kw := range []string{"budget planning", "financial planning", "investment strategies"} {
		require.NoError(t, store.RecordRun(ctx, brief.RunSummary{
			RunID:        kw,
			ContentID:    brief.DeriveContentID(kw),
			FocusKeyword: kw,
			TopicTheme:   "Finance",
			BuyerPersona: "CFO",
			Filename:     "brief.json",
			ContentHash:  "sha256:x",
			SERPCount:    i + 1,
			ModelCalls:   4,
			CompletedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "investment strategies", runs[0].RunID)
	require.Equal(t, 3, runs[0].SERPCount)
	require.True(t, base.Add(2*time.Hour).Equal(runs[0].CompletedAt))
	require.Equal(t, "financial planning", runs[1].RunID)
}

func TestRecordRunUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	run := brief.RunSummary{RunID: "run-1", ContentID: "BUD15", Filename: "a.json", CompletedAt: time.Now()}
	require.NoError(t, store.RecordRun(ctx, run))
	run.Filename = "b.json"
	require.NoError(t, store.RecordRun(ctx, run))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "b.json", runs[0].Filename)

	require.Error(t, store.RecordRun(ctx, brief.RunSummary{}))
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
