package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

func TestTextParser_SplitsOnFormFeed(t *testing.T) {
	p := &TextParser{}
	pages, err := p.ParsePages(strings.NewReader("page one\fpage two\fpage three"), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two", "page three"}, pages)
}

func TestTextParser_SinglePageWithoutFormFeed(t *testing.T) {
	p := &TextParser{}
	pages, err := p.ParsePages(strings.NewReader("just one page of text"), "doc.md")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "just one page of text", pages[0])
}

func TestManager_Supports(t *testing.T) {
	m := NewManager()

	assert.True(t, m.Supports("report.pdf"))
	assert.True(t, m.Supports("notes.TXT"))
	assert.True(t, m.Supports("memo.docx"))
	assert.True(t, m.Supports("readme.markdown"))
	assert.False(t, m.Supports("binary.exe"))
	assert.False(t, m.Supports("archive.zip"))
}

func TestManager_ParsePagesDispatch(t *testing.T) {
	m := NewManager()

	pages, err := m.ParsePages(strings.NewReader("a\fb"), "doc.txt")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestManager_UnsupportedFormat(t *testing.T) {
	m := NewManager()

	_, err := m.ParsePages(strings.NewReader("data"), "binary.exe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidDocument))
}

func TestManager_SupportedFormats(t *testing.T) {
	m := NewManager()
	assert.Contains(t, m.SupportedFormats(), ".pdf")
	assert.Contains(t, m.SupportedFormats(), ".txt")
}
