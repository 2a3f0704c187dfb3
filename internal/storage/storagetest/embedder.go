// Package storagetest provides a deterministic embedder for tests.
package storagetest

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// Dimension of vectors produced by BagOfWords.
const Dimension = 512

// BagOfWords embeds text as a word-count vector. Each distinct lowercase
// word gets its own axis the first time it is seen, so texts sharing no
// words are orthogonal.
type BagOfWords struct {
	mu    sync.Mutex
	vocab map[string]int
	Calls int
	Err   error
}

func NewBagOfWords() *BagOfWords {
	return &BagOfWords{vocab: make(map[string]int)}
}

func (b *BagOfWords) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Calls++
	if b.Err != nil {
		return nil, b.Err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, Dimension)
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			axis, ok := b.vocab[w]
			if !ok {
				axis = len(b.vocab) % Dimension
				b.vocab[w] = axis
			}
			v[axis]++
		}
		out[i] = v
	}
	return out, nil
}
