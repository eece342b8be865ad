package docextract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestExtract_NonPDFContentTypeReturnsEmpty(t *testing.T) {
	e := New(arbor.NewLogger())

	text, pages, hasTables, hasImages, err := e.Extract(context.Background(), []byte("<html></html>"), "text/html")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, pages)
	assert.False(t, hasTables)
	assert.False(t, hasImages)
}
