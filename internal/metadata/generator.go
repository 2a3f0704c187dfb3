// Package metadata generates document summaries through the LLM gateway.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/markdown"
	"github.com/bull/pdfchat-server/internal/textstat"
)

// DefaultMaxChars is the maximum input length sent for summarization.
const DefaultMaxChars = 64000

const summaryInstruction = "Summarize the input text clearly and directly in markdown format, without introductory or closing phrases."

var ErrNoText = errors.New("document has no extractable text")

// Sender is the completion side of llm.Gateway.
type Sender interface {
	Send(ctx context.Context, model string, messages []llm.Message) (string, error)
}

// Summary is a generated markdown summary and its heading outline.
type Summary struct {
	Text    string
	Outline []markdown.Heading
}

// Generator produces summaries with a fixed model.
type Generator struct {
	sender   Sender
	model    string
	maxChars int
	logger   *slog.Logger
}

// NewGenerator creates a summary generator for model.
// Optional maxChars sets the truncation limit (defaults to DefaultMaxChars).
func NewGenerator(sender Sender, model string, logger *slog.Logger, maxChars ...int) *Generator {
	limit := DefaultMaxChars
	if len(maxChars) > 0 && maxChars[0] > 0 {
		limit = maxChars[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		sender:   sender,
		model:    model,
		maxChars: limit,
		logger:   logger,
	}
}

// Model is the model summaries are requested from.
func (g *Generator) Model() string { return g.model }

// Summarize condenses document text. Stopwords are removed first to fit
// more content in the request.
func (g *Generator) Summarize(ctx context.Context, content string) (*Summary, error) {
	cleaned := strings.TrimSpace(textstat.RemoveStopwords(content))
	if cleaned == "" {
		return nil, ErrNoText
	}
	truncated := g.truncateContent(cleaned)

	reply, err := g.sender.Send(ctx, g.model, []llm.Message{
		{Role: llm.RoleSystem, Content: summaryInstruction},
		{Role: llm.RoleUser, Content: "Summarize this:\n" + truncated},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	return &Summary{Text: reply, Outline: OutlineOf(reply)}, nil
}

// OutlineOf returns the heading outline of a markdown summary, or nil.
func OutlineOf(summary string) []markdown.Heading {
	if summary == "" {
		return nil
	}
	outline, err := markdown.Outline([]byte(summary))
	if err != nil {
		return nil
	}
	return outline
}

// truncateContent cuts content to maxChars bytes on a rune boundary.
func (g *Generator) truncateContent(content string) string {
	if len(content) <= g.maxChars {
		return content
	}

	cut := g.maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}

	g.logger.Warn("Truncating summary input", "from", len(content), "to", cut)
	return content[:cut]
}
