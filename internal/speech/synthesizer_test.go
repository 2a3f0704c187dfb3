package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizer_Speak(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	s := NewSynthesizer(&client, "", "nova")

	audio, err := s.Speak(context.Background(),
		"**Foxes** are quick.\n<!-- pdfnav:{\"id\":\"d1\",\"page\":2,\"name\":\"a.pdf\"} -->")
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3-fake-mp3"), audio.Data)
	assert.Equal(t, FormatMP3, audio.Format)
	assert.Equal(t, "Foxes are quick.", got["input"])
	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "mp3", got["response_format"])
}

func TestSynthesizer_EmptyText(t *testing.T) {
	s := NewSynthesizer(nil, "", "")
	_, err := s.Speak(context.Background(), "<!-- pdfnav:{\"id\":\"d1\"} -->\n\n---")
	assert.ErrorIs(t, err, ErrEmptyText)
}
