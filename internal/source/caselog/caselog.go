// Package caselog turns historical case logs (CSV or XLSX) into one
// document per row.
package caselog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/source"
)

const csvSheet = "csv"

// ParseCSV reads a CSV case log. The first record holds the headers.
func ParseCSV(path string, r io.Reader) (*source.Static, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	return source.NewStatic(path, rowsToDocuments(records, path, csvSheet, domain.SourceCaseLogCSV)), nil
}

// ParseXLSX reads one worksheet of an Excel case log. An empty sheet name
// selects the active sheet.
func ParseXLSX(path string, r io.Reader, sheet string) (*source.Static, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	return source.NewStatic(path, rowsToDocuments(rows, path, sheet, domain.SourceCaseLogExcel)), nil
}

// rowsToDocuments renders each data row as "header: value" lines. Empty
// cells are skipped and rows with no values are dropped, but the row index
// keeps counting so it matches the spreadsheet.
func rowsToDocuments(rows [][]string, path, sheet, kind string) []source.Document {
	if len(rows) == 0 {
		return nil
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		if h = strings.TrimSpace(h); h == "" {
			h = fmt.Sprintf("col_%d", i)
		}
		headers[i] = h
	}

	var docs []source.Document
	for idx, row := range rows[1:] {
		text := rowText(headers, row)
		if text == "" {
			continue
		}
		n := idx + 1
		docs = append(docs, source.Document{
			ID:       fmt.Sprintf("case_row_%d", n),
			Text:     text,
			Kind:     kind,
			Path:     path,
			RowIndex: n,
			Sheet:    sheet,
		})
	}
	return docs
}

func rowText(headers, row []string) string {
	var lines []string
	for i, v := range row {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		h := fmt.Sprintf("col_%d", i)
		if i < len(headers) {
			h = headers[i]
		}
		lines = append(lines, h+": "+v)
	}
	return strings.Join(lines, "\n")
}
