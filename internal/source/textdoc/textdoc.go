// Package textdoc loads a knowledge base file as a single document.
package textdoc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/source"
)

// Parse reads plain text, markdown or .docx content. Documents that are
// empty after trimming yield an empty source.
func Parse(path string, r io.Reader) (*source.Static, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(data)
	if strings.EqualFold(filepath.Ext(path), ".docx") {
		if text, err = docxText(data); err != nil {
			return nil, fmt.Errorf("parse docx %s: %w", path, err)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return source.NewStatic(path, nil), nil
	}

	return source.NewStatic(path, []source.Document{{
		ID:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Text: text,
		Kind: domain.SourceKnowledgeBase,
		Path: path,
	}}), nil
}

// docxText extracts paragraph text from word/document.xml, one paragraph
// per line.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inText bool
		dec    = xml.NewDecoder(rc)
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
