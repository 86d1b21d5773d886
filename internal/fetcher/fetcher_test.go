package fetcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

func TestSearchURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://html.duckduckgo.com/html/?q=budget+planning", SearchURL("", "budget planning"))
	require.Equal(t, "http://x/search?hl=en&q=a%26b", SearchURL("http://x/search?hl=en", "a&b"))
	require.Equal(t, "http://x/s?q=k", SearchURL("http://x/s", " k "))
}

func TestTruncateRenumbers(t *testing.T) {
	t.Parallel()

	in := []brief.SERPResult{{URL: "a", Position: 7}, {URL: "b"}, {URL: "c"}}
	out := Truncate(in, 2)
	require.Len(t, out, 2)
	require.Equal(t, 1, out[0].Position)
	require.Equal(t, 2, out[1].Position)
	require.Equal(t, 7, in[0].Position)
	require.Equal(t, []string{"a", "b"}, URLs(out))
}
