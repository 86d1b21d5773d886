package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "briefs"})
	require.ErrorContains(t, err, "storage client is required")
}
