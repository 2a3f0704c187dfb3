package textstat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"quick", "brown", "fox", "can’t", "write", "résumé"},
		Tokenize("The quick, brown FOX can’t write a résumé."))
	assert.Empty(t, Tokenize("the and of"))
}

func TestRemoveStopwords(t *testing.T) {
	got := RemoveStopwords("The fox jumped over the dog.\nIt was quick!")
	assert.Equal(t, "fox jumped dog.\nquick!", got)
}

func TestCosine(t *testing.T) {
	fox := TermFrequency("fox fox dog")
	same := TermFrequency("the fox, the fox and a dog")
	other := TermFrequency("database index query")

	assert.InDelta(t, 1.0, Cosine(fox, same), 1e-9)
	assert.InDelta(t, 0.0, Cosine(fox, other), 1e-9)
	assert.Zero(t, Cosine(fox, TermFrequency("")))

	partial := Cosine(fox, TermFrequency("fox cat"))
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
	assert.InDelta(t, partial, Cosine(TermFrequency("fox cat"), fox), 1e-12)
}

func TestCosine_StaysInUnitRange(t *testing.T) {
	base := "retrieval augmented generation pipelines chunk embed query rerank answer"
	texts := []string{base + " w8 x56 y104 w8"}
	for i := 0; i < 500; i++ {
		texts = append(texts, fmt.Sprintf("%s %s %s", base, strings.Repeat("alpha ", i%7+1), strings.Repeat("omega ", i%13+1)))
	}

	for _, text := range texts {
		tf := TermFrequency(text)
		got := Cosine(tf, tf)
		assert.LessOrEqual(t, got, 1.0, text)
		assert.InDelta(t, 1.0, got, 1e-9, text)
	}
}

