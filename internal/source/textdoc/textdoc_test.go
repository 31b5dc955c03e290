package textdoc

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/portdesk/internal/domain"
)

func TestParsePlainText(t *testing.T) {
	src, err := Parse("kb/edi-runbook.md", strings.NewReader("\n# EDI runbook\nRestart the adapter.\n"))
	require.NoError(t, err)

	docs, _, err := src.FetchBatch(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "edi-runbook", docs[0].ID)
	assert.Equal(t, "# EDI runbook\nRestart the adapter.", docs[0].Text)
	assert.Equal(t, domain.SourceKnowledgeBase, docs[0].Kind)
}

func TestParseEmpty(t *testing.T) {
	src, err := Parse("blank.txt", strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, 0, src.Len())
}

func TestParseDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Vessel advice</w:t></w:r><w:r><w:t xml:space="preserve"> duplicates</w:t></w:r></w:p>
<w:p><w:r><w:t>Close the older advice first.</w:t></w:r></w:p>
</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	src, err := Parse("Knowledge Base.docx", &buf)
	require.NoError(t, err)
	docs, _, err := src.FetchBatch(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Vessel advice duplicates\nClose the older advice first.", docs[0].Text)
}

func TestParseDocxRejectsNonZip(t *testing.T) {
	_, err := Parse("broken.docx", strings.NewReader("not a zip"))
	assert.Error(t, err)
}
