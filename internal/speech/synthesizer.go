// Package speech converts assistant replies to audio.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"

	"github.com/bull/pdfchat-server/internal/markdown"
)

const (
	DefaultModel = "tts-1"
	DefaultVoice = "alloy"
	FormatMP3    = "mp3"
)

var ErrEmptyText = errors.New("nothing to speak")

// Audio is encoded speech.
type Audio struct {
	Data   []byte
	Format string
}

// Synthesizer calls an OpenAI-compatible speech endpoint.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

func NewSynthesizer(client *openai.Client, model, voice string) *Synthesizer {
	if model == "" {
		model = DefaultModel
	}
	if voice == "" {
		voice = DefaultVoice
	}
	return &Synthesizer{client: client, model: model, voice: voice}
}

// Speak renders markdown to plain text, dropping navigation tags, and
// returns it as MP3 audio.
func (s *Synthesizer) Speak(ctx context.Context, md string) (*Audio, error) {
	text := markdown.PlainText(md)
	if text == "" {
		return nil, ErrEmptyText
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return &Audio{Data: data, Format: FormatMP3}, nil
}
