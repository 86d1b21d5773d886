package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderListClasses(t *testing.T) {
	t.Parallel()

	out, err := New().Render("# Brief\n\n- one\n- two\n\n1. first\n2. second\n")
	require.NoError(t, err)
	require.Contains(t, out, `<h1 id="brief">Brief</h1>`)
	require.Contains(t, out, `<ul class="custom-list">`)
	require.Contains(t, out, `<ol class="custom-list-ol">`)
	require.Contains(t, out, `<li class="custom-list-item">one</li>`)
	require.NotContains(t, out, "<ul>")
	require.NotContains(t, out, "<li>")
}

func TestRenderGFMTablesAndEscaping(t *testing.T) {
	t.Parallel()

	src := "| Title | URL |\n|---|---|\n| A | https://a.example |\n\n~~old~~\n\n<script>alert(1)</script>\n"
	out, err := New().Render(src)
	require.NoError(t, err)
	require.Contains(t, out, "<table>")
	require.Contains(t, out, "<del>old</del>")
	require.NotContains(t, out, "<script>")
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	out, err := New().Render("")
	require.NoError(t, err)
	require.Empty(t, out)
}
