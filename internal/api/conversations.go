package api

import (
	"encoding/base64"
	"net/http"

	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/service"
)

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.svc.ListConversations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type createConversationRequest struct {
	Label       string   `json:"label"`
	DocumentIDs []string `json:"document_ids"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.svc.CreateConversation(r.Context(), req.Label, req.DocumentIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

type updateConversationRequest struct {
	Label       *string   `json:"label"`
	DocumentIDs *[]string `json:"document_ids"`
}

func (s *Server) updateConversation(w http.ResponseWriter, r *http.Request) {
	var req updateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.svc.UpdateConversation(r.Context(), r.PathValue("id"), service.ConversationPatch{
		Label:       req.Label,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteConversation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{DeletedID: id})
}

type messageRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Mode  string `json:"mode"`
}

type messagesResponse struct {
	Messages []records.Message `json:"messages"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msgs, err := s.svc.SendMessage(r.Context(), r.PathValue("id"), service.MessageRequest{
		Text:  req.Text,
		Model: req.Model,
		Mode:  req.Mode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.ClearHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type summariesResponse struct {
	Summaries []service.DocumentSummary `json:"summaries"`
}

func (s *Server) summarizeDocuments(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.svc.SummarizeDocuments(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summariesResponse{Summaries: summaries})
}

type speechRequest struct {
	Text string `json:"text"`
}

type speechResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
}

func (s *Server) speak(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	audio, format, err := s.svc.Speak(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Format:      format,
	})
}

func (s *Server) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Models())
}
