package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/prompt"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/retrieval"
)

// MessageRequest is one user turn.
type MessageRequest struct {
	Text  string
	Model string
	Mode  string
}

// SendMessage appends the user message, answers it from the attached
// documents and appends the reply. A provider failure is recorded as the
// assistant message and returned as *UpstreamError carrying both messages.
func (s *Service) SendMessage(ctx context.Context, conversationID string, req MessageRequest) ([]records.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(conv.DocumentIDs) == 0 {
		return nil, validationf("cannot chat with a conversation without any PDF attached")
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, validationf("message text is required")
	}
	model := req.Model
	if model == "" {
		model = s.opts.DefaultModel
	}
	if !s.gateway.Supports(model) {
		return nil, validationf("unknown model %q", model)
	}
	mode, err := retrieval.ParseMode(req.Mode)
	if err != nil {
		return nil, validationf("%v", err)
	}

	userMsg := records.Message{Role: records.RoleUser, Content: text, CreatedAt: time.Now().UTC()}
	if err := s.store.AppendMessages(ctx, conversationID, userMsg); err != nil {
		return nil, mapStoreError(err, "conversation", conversationID)
	}
	history := append(conv.History, userMsg)

	passages := s.assembler.Assemble(ctx, mode, text, conv.DocumentIDs)
	messages := prompt.Build(prompt.Request{
		History:      history,
		Question:     text,
		Passages:     passages,
		Mode:         mode,
		Similarities: conv.Similarities,
		Names:        s.documentNames(ctx, conv.Similarities),
	})

	start := time.Now()
	reply, sendErr := s.gateway.Send(ctx, model, messages)
	if sendErr != nil {
		s.logger.Error("Model call failed",
			"conversation_id", conversationID,
			"model", model,
			"error", sendErr,
		)
		reply = "Error: " + sendErr.Error()
	} else {
		s.logger.Info("Model replied",
			"conversation_id", conversationID,
			"model", model,
			"mode", mode,
			"passages", len(passages),
			"duration", time.Since(start),
		)
	}

	assistantMsg := records.Message{Role: records.RoleAssistant, Content: reply, CreatedAt: time.Now().UTC()}
	if err := s.store.AppendMessages(ctx, conversationID, assistantMsg); err != nil {
		return nil, mapStoreError(err, "conversation", conversationID)
	}

	exchanged := []records.Message{userMsg, assistantMsg}
	if sendErr != nil {
		if errors.Is(sendErr, llm.ErrUnknownModel) {
			return nil, validationf("%v", sendErr)
		}
		return exchanged, &UpstreamError{Err: sendErr, Messages: exchanged}
	}
	return exchanged, nil
}

// documentNames resolves display names for documents named in scores.
func (s *Service) documentNames(ctx context.Context, scores []records.SimilarityScore) map[string]string {
	if len(scores) == 0 {
		return nil
	}
	names := make(map[string]string)
	for _, sc := range scores {
		for _, id := range []string{sc.DocumentA, sc.DocumentB} {
			if _, ok := names[id]; ok {
				continue
			}
			doc, err := s.store.GetDocument(ctx, id)
			if err != nil {
				names[id] = retrieval.UnknownDocumentName
				continue
			}
			names[id] = doc.DisplayName()
		}
	}
	return names
}

// Speak converts an assistant reply to MP3 audio.
func (s *Service) Speak(ctx context.Context, markdown string) ([]byte, string, error) {
	if s.speaker == nil {
		return nil, "", fmt.Errorf("%w: text-to-speech is not configured", ErrUnavailable)
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, "", validationf("text is required")
	}
	audio, err := s.speaker.Speak(ctx, markdown)
	if err != nil {
		return nil, "", &UpstreamError{Err: err}
	}
	return audio.Data, audio.Format, nil
}
