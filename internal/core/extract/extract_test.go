package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivevectorai/backend/internal/core"
)

func TestExtractPlainText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract([]byte("  hello world\n"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractTextSubtypesViaPrefix(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract([]byte("a,b,c\n1,2,3"), "text/csv; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3", text)
}

func TestExtractDriveDocumentExportedAsText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract([]byte("exported body"), "application/vnd.google-apps.document")
	require.NoError(t, err)
	assert.Equal(t, "exported body", text)
}

func TestExtractDropsInvalidUTF8(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract([]byte{'o', 'k', 0xff, 0xfe, '!'}, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "ok!", text)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract([]byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupportedFormat))
}

func TestExtractEmptyDocument(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract([]byte("   \n\t  "), "text/plain")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyDocument))
}

func TestSupported(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Supported("application/pdf"))
	assert.True(t, r.Supported("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.True(t, r.Supported("text/plain"))
	assert.True(t, r.Supported("TEXT/MARKDOWN"))
	assert.True(t, r.Supported("application/vnd.google-apps.document"))

	assert.False(t, r.Supported("image/png"))
	assert.False(t, r.Supported("application/vnd.google-apps.spreadsheet"))
	assert.False(t, r.Supported(""))
}

func TestRegisterOverridesDefault(t *testing.T) {
	r := NewRegistry()
	r.Register("application/pdf", func(data []byte) (string, error) {
		return "stubbed pdf text", nil
	})

	text, err := r.Extract([]byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "stubbed pdf text", text)
}
