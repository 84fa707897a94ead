package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

func TestPDFExtractorSupportsOnlyPDFKind(t *testing.T) {
	e := NewPDFExtractor()
	assert.True(t, e.Supports(fetch.KindPDF))
	assert.False(t, e.Supports(fetch.KindXLSX))
}

// Extractors never fail hard on malformed input (package doc): a
// corrupted/non-PDF body yields a warning, not an error.
func TestPDFExtractorNeverErrorsOnGarbageBytes(t *testing.T) {
	e := NewPDFExtractor()
	partial, err := e.Extract(fetch.Attachment{Name: "bad.pdf", Body: []byte("this is not a pdf")})
	require.NoError(t, err)
	assert.NotEmpty(t, partial.Warnings)
	assert.Empty(t, partial.Fields)
	assert.Equal(t, fetch.KindPDF, partial.SourceKind)
}

func TestPDFExtractorWarnsOnEmptyBody(t *testing.T) {
	e := NewPDFExtractor()
	partial, err := e.Extract(fetch.Attachment{Name: "empty.pdf", Body: []byte{}})
	require.NoError(t, err)
	assert.NotEmpty(t, partial.Warnings)
}

func TestTruncateRespectsMaxLength(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
}
