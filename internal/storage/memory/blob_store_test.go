package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/storage"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBlobStore()

	uri, err := store.PutObject(ctx, "briefs/b.html", "text/html", strings.NewReader("<p>b</p>"))
	require.NoError(t, err)
	require.Equal(t, "memory://briefs/b.html", uri)
	_, err = store.PutObject(ctx, "briefs/a.json", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)

	data, err := store.GetObject(ctx, "briefs/b.html")
	require.NoError(t, err)
	require.Equal(t, "<p>b</p>", string(data))
	data[0] = 'X'
	again, err := store.GetObject(ctx, "briefs/b.html")
	require.NoError(t, err)
	require.Equal(t, "<p>b</p>", string(again))
	require.Equal(t, "text/html", store.ContentType("briefs/b.html"))

	objects, err := store.ListObjects(ctx, "briefs/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, "briefs/a.json", objects[0].Path)

	_, err = store.GetObject(ctx, "briefs/missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.PutObject(ctx, "../x", "", strings.NewReader(""))
	require.Error(t, err)
}
