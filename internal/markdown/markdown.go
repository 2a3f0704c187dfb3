// Package markdown reads model output: plain text for speech and the heading
// outline for summaries.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var navTagPattern = regexp.MustCompile(`<!--\s*pdfnav:.*?-->`)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// Heading is one entry of a document outline.
type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	ID    string `json:"id"`
	// Path is the heading hierarchy, e.g. "# Overview > ## Findings".
	Path string `json:"path"`
}

// StripNavTags removes pdfnav navigation comments.
func StripNavTags(s string) string {
	return navTagPattern.ReplaceAllString(s, "")
}

func parse(source []byte) ast.Node {
	return md.Parser().Parse(text.NewReader(source))
}

// Outline lists headings down to level three in document order.
func Outline(source []byte) ([]Heading, error) {
	doc := parse(source)
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect outline: %w", err)
	}

	var out []Heading
	flatten(tree.Items, nil, &out)
	return out, nil
}

func flatten(items toc.Items, ancestors []string, out *[]Heading) {
	for _, item := range items {
		path := append(ancestors[:len(ancestors):len(ancestors)], string(item.Title))
		if len(item.Title) > 0 {
			*out = append(*out, Heading{
				Level: len(path),
				Title: string(item.Title),
				ID:    string(item.ID),
				Path:  formatHeaderPath(path),
			})
		}
		flatten(item.Items, path, out)
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// PlainText renders markdown as readable text. Navigation tags, images,
// raw HTML and rules are dropped; each table row becomes one sentence
// naming its column headers.
func PlainText(source string) string {
	src := []byte(StripNavTags(source))
	var b strings.Builder
	writeBlocks(&b, parse(src), src)
	return strings.TrimSpace(b.String())
}

func writeBlocks(b *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.Kind() {
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
			writeLine(b, inline(c, src))
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				writeLine(b, strings.TrimSpace(string(seg.Value(src))))
			}
		case ast.KindHTMLBlock, ast.KindThematicBreak:
		case extast.KindTable:
			writeTable(b, c, src)
		default:
			writeBlocks(b, c, src)
		}
	}
}

// writeTable reads each body row as "Header: value, Header: value."
func writeTable(b *strings.Builder, table ast.Node, src []byte) {
	var headers []string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, inline(cell, src))
		}
		if row.Kind() == extast.KindTableHeader {
			headers = cells
			continue
		}

		parts := make([]string, 0, len(cells))
		for i, cell := range cells {
			if cell == "" {
				continue
			}
			if i < len(headers) && headers[i] != "" {
				parts = append(parts, headers[i]+": "+cell)
			} else {
				parts = append(parts, cell)
			}
		}
		if len(parts) > 0 {
			writeLine(b, strings.Join(parts, ", ")+".")
		}
	}
}

func writeLine(b *strings.Builder, line string) {
	if line == "" {
		return
	}
	b.WriteString(line)
	b.WriteByte('\n')
}

func inline(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.Image, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
