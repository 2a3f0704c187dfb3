package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bull/pdfchat-server/internal/llm"
)

type recordingSender struct {
	model    string
	messages []llm.Message
	reply    string
	err      error
}

func (s *recordingSender) Send(_ context.Context, model string, messages []llm.Message) (string, error) {
	s.model = model
	s.messages = messages
	return s.reply, s.err
}

// TestSummarize verifies the request shape and the returned outline.
func TestSummarize(t *testing.T) {
	sender := &recordingSender{reply: "## Overview\n\nFoxes are quick.\n\n## Habitat\n\nMeadows."}
	g := NewGenerator(sender, "gemini-2.0-flash", nil)

	summary, err := g.Summarize(context.Background(), "The fox is quick and it lives in the meadow.")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if sender.model != "gemini-2.0-flash" {
		t.Errorf("Expected model gemini-2.0-flash, got %q", sender.model)
	}
	if len(sender.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(sender.messages))
	}
	if sender.messages[0].Role != llm.RoleSystem || sender.messages[0].Content != summaryInstruction {
		t.Errorf("Unexpected system message: %+v", sender.messages[0])
	}
	user := sender.messages[1].Content
	if !strings.HasPrefix(user, "Summarize this:\n") {
		t.Errorf("Unexpected user message: %q", user)
	}
	if strings.Contains(user, " the ") || !strings.Contains(user, "fox quick lives meadow.") {
		t.Errorf("Stopwords not removed: %q", user)
	}

	if summary.Text != sender.reply {
		t.Errorf("Expected reply as summary text, got %q", summary.Text)
	}
	if len(summary.Outline) != 2 || summary.Outline[0].Title != "Overview" || summary.Outline[1].Title != "Habitat" {
		t.Errorf("Unexpected outline: %+v", summary.Outline)
	}
}

// TestSummarize_EmptyText verifies no request is made without text.
func TestSummarize_EmptyText(t *testing.T) {
	sender := &recordingSender{}
	g := NewGenerator(sender, "m", nil)

	_, err := g.Summarize(context.Background(), "the and of")
	if !errors.Is(err, ErrNoText) {
		t.Errorf("Expected ErrNoText, got %v", err)
	}
	if sender.messages != nil {
		t.Error("Sender should not be called")
	}
}

// TestSummarize_SenderError verifies gateway errors propagate wrapped.
func TestSummarize_SenderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	g := NewGenerator(&recordingSender{err: boom}, "m", nil)

	_, err := g.Summarize(context.Background(), "some real content")
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped sender error, got %v", err)
	}
}

// TestTruncateContent verifies truncation works correctly for very long content.
func TestTruncateContent(t *testing.T) {
	g := NewGenerator(nil, "m", nil)

	longContent := strings.Repeat("This is a test content. ", 4000) // ~96k chars
	truncated := g.truncateContent(longContent)

	if len(truncated) != DefaultMaxChars {
		t.Errorf("Expected truncated length %d, got %d", DefaultMaxChars, len(truncated))
	}
	if !strings.HasPrefix(longContent, truncated) {
		t.Error("Truncated content should be a prefix of original content")
	}
}

// TestTruncateContent_Short verifies short content is not truncated.
func TestTruncateContent_Short(t *testing.T) {
	g := NewGenerator(nil, "m", nil)

	shortContent := strings.Repeat("Short. ", 140)
	if truncated := g.truncateContent(shortContent); truncated != shortContent {
		t.Error("Short content should not be truncated")
	}
}

// TestTruncateContent_RuneBoundary verifies multi-byte runes are never split.
func TestTruncateContent_RuneBoundary(t *testing.T) {
	g := NewGenerator(nil, "m", nil, 10)

	truncated := g.truncateContent(strings.Repeat("é", 20)) // 2 bytes each
	if !utf8.ValidString(truncated) {
		t.Errorf("Truncated content is not valid UTF-8: %q", truncated)
	}
	if len(truncated) != 10 {
		t.Errorf("Expected 10 bytes, got %d", len(truncated))
	}
}

// TestNewGenerator_CustomMaxChars verifies the optional limit.
func TestNewGenerator_CustomMaxChars(t *testing.T) {
	if g := NewGenerator(nil, "m", nil, 500); g.maxChars != 500 {
		t.Errorf("Expected maxChars 500, got %d", g.maxChars)
	}
	if g := NewGenerator(nil, "m", nil, 0); g.maxChars != DefaultMaxChars {
		t.Errorf("Expected default maxChars, got %d", g.maxChars)
	}
}
