package caselog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/timmy/portdesk/internal/domain"
)

func TestParseCSV(t *testing.T) {
	data := "Case,Module,Resolution\n" +
		"C-1,Container,Reset gate transaction\n" +
		",,\n" +
		"C-3,,Resent COPARN\n"

	src, err := ParseCSV("cases.csv", strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, src.Len())

	docs, next, err := src.FetchBatch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, next)

	assert.Equal(t, "case_row_1", docs[0].ID)
	assert.Equal(t, "Case: C-1\nModule: Container\nResolution: Reset gate transaction", docs[0].Text)
	assert.Equal(t, domain.SourceCaseLogCSV, docs[0].Kind)
	assert.Equal(t, "csv", docs[0].Sheet)

	assert.Equal(t, "case_row_3", docs[1].ID, "empty rows still advance the row index")
	assert.Equal(t, 3, docs[1].RowIndex)
	assert.Equal(t, "Case: C-3\nResolution: Resent COPARN", docs[1].Text)
}

func TestParseCSVEmpty(t *testing.T) {
	src, err := ParseCSV("empty.csv", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, src.Len())
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Cases"))
	require.NoError(t, f.SetSheetRow("Cases", "A1", &[]interface{}{"Case", "", "Summary"}))
	require.NoError(t, f.SetSheetRow("Cases", "A2", &[]interface{}{"C-9", "EDI", "Partner timeout"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	src, err := ParseXLSX("Case Log.xlsx", buf, "")
	require.NoError(t, err)

	docs, _, err := src.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Case: C-9\ncol_1: EDI\nSummary: Partner timeout", docs[0].Text)
	assert.Equal(t, "Cases", docs[0].Sheet)
	assert.Equal(t, domain.SourceCaseLogExcel, docs[0].Kind)
}
