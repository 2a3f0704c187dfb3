package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/retrieval"
)

func history(pairs ...string) []records.Message {
	msgs := make([]records.Message, 0, len(pairs))
	for i, c := range pairs {
		r := records.RoleUser
		if i%2 == 1 {
			r = records.RoleAssistant
		}
		msgs = append(msgs, records.Message{Role: r, Content: c})
	}
	return msgs
}

func TestBuild_Ordering(t *testing.T) {
	tests := []struct {
		name    string
		history []records.Message
	}{
		{"first turn", history("what is a fox?")},
		{"follow up", history("q1", "a1", "q2", "a2", "what is a fox?")},
		{"no history", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := Build(Request{History: tt.history, Question: "what is a fox?", Mode: retrieval.ModeChunk})

			require.NotEmpty(t, msgs)
			assert.Equal(t, llm.RoleSystem, msgs[0].Role)

			prior := max(len(tt.history)-1, 0)
			require.Len(t, msgs, prior+2)
			for i := 0; i < prior; i++ {
				assert.Equal(t, tt.history[i].Content, msgs[i+1].Content)
				assert.Equal(t, string(tt.history[i].Role), string(msgs[i+1].Role))
			}

			last := msgs[len(msgs)-1]
			assert.Equal(t, llm.RoleUser, last.Role)
			assert.Contains(t, last.Content, "what is a fox?")

			users := 0
			for _, m := range msgs[1 : len(msgs)-1] {
				if strings.Contains(m.Content, "INPUT PROMPT:") {
					users++
				}
			}
			assert.Zero(t, users)
		})
	}
}

func TestBuild_SystemInstructionByMode(t *testing.T) {
	chunk := Build(Request{Question: "q", Mode: retrieval.ModeChunk})
	full := Build(Request{Question: "q", Mode: retrieval.ModeFullDocument})

	assert.NotEqual(t, chunk[0].Content, full[0].Content)
	assert.Contains(t, full[0].Content, "across documents")
	assert.Contains(t, chunk[0].Content, "pdfnav")
}

func TestUserTurn_WithPassages(t *testing.T) {
	content := UserTurn(Request{
		Question: "Where is the fox?",
		Passages: []retrieval.Passage{
			{Text: "The quick brown fox", Source: retrieval.Source{DocumentID: "d1", DocumentName: "animals.pdf", Page: 2}},
			{Text: "A lazy dog", Source: retrieval.Source{DocumentID: "d2", Page: 7}},
		},
	})

	assert.True(t, strings.HasPrefix(content, "INPUT PROMPT:\nWhere is the fox?\n"))
	assert.Contains(t, content, "CONTENT:\n")
	assert.Contains(t, content, `<!-- pdfnav:{"id":"d1","page":2,"name":"animals.pdf"} -->`+"\nThe quick brown fox")
	assert.Contains(t, content, `<!-- pdfnav:{"id":"d2","page":7,"name":"Unknown document"} -->`+"\nA lazy dog")
	assert.Less(t, strings.Index(content, "quick brown"), strings.Index(content, "lazy dog"))
	assert.NotContains(t, content, noContextNote)
}

func TestUserTurn_NoContext(t *testing.T) {
	content := UserTurn(Request{Question: "Hello?"})

	assert.Contains(t, content, noContextNote)
	assert.NotContains(t, content, "CONTENT:")
	assert.NotContains(t, content, "pdfnav:{")
}

func TestUserTurn_Similarity(t *testing.T) {
	content := UserTurn(Request{
		Question: "Compare them",
		Similarities: []records.SimilarityScore{
			{DocumentA: "a", DocumentB: "b", Score: 0.42},
			{DocumentA: "a", DocumentB: "c", Score: 0.91},
			{DocumentA: "b", DocumentB: "c", Score: 0.05},
		},
		Names: map[string]string{"a": "alpha.pdf", "b": "beta.pdf"},
	})

	assert.Contains(t, content, "DOCUMENT SIMILARITY")
	assert.Contains(t, content, `- "alpha.pdf" and "beta.pdf": 0.42`)
	assert.Contains(t, content, `Most similar pair: "alpha.pdf" and "Unknown document" (0.91)`)
	assert.Contains(t, content, `Least similar pair: "beta.pdf" and "Unknown document" (0.05)`)
	assert.NotContains(t, content, noContextNote)
}

func TestNavTag(t *testing.T) {
	tag := NavTag(retrieval.Source{DocumentID: "abc", DocumentName: `Q3 "final".pdf`, Page: 4})
	assert.Equal(t, `<!-- pdfnav:{"id":"abc","page":4,"name":"Q3 \"final\".pdf"} -->`, tag)
}
