package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/strom/internal/api"
	"github.com/cloo-solutions/strom/internal/service"
)

type ConversationService interface {
	Converse(ctx context.Context, input service.ConversationInput) (*service.ConversationResult, error)
}

type ConversationHandler struct {
	svc ConversationService
}

func NewConversationHandler(svc ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type ConversationRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Converse answers one question. The stored message id, when there is one,
// is returned in the X-Message-ID header.
func (h *ConversationHandler) Converse(w http.ResponseWriter, r *http.Request) {
	var req ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Converse(r.Context(), service.ConversationInput{
		UserID:  req.UserID,
		Email:   req.Email,
		Name:    req.Name,
		Message: req.Message,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if result.MessageID != "" {
		w.Header().Set("X-Message-ID", result.MessageID)
	}
	api.Success(w, http.StatusOK, result.Answer)
}
