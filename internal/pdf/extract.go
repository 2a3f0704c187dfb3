// Package pdf extracts page-ordered plain text from PDF bytes.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

var ErrNotPDF = errors.New("content is not a PDF")

// Page is the cleaned text of one page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extractor implements page extraction; the zero value is ready to use.
type Extractor struct{}

// ExtractPages returns one entry per page in page order. Pages without a
// text layer yield an empty Text.
func (Extractor) ExtractPages(data []byte) ([]Page, error) {
	return ExtractPages(data)
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-"))
}

func ExtractPages(data []byte) (pages []Page, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: Clean(text)})
	}
	return pages, nil
}

// ExtractText returns the cleaned text of all pages joined by blank lines.
func ExtractText(data []byte) (string, error) {
	pages, err := ExtractPages(data)
	if err != nil {
		return "", err
	}
	return JoinPages(pages), nil
}

// JoinPages joins the non-empty page texts with blank lines.
func JoinPages(pages []Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
