package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
	"github.com/luminadata/schemagraph/pkg/nl2sql"
)

// ChatHandler serves conversational requests.
type ChatHandler struct {
	engine *nl2sql.Engine
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(engine *nl2sql.Engine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.Chat)
}

// Chat handles POST /chat requests. The engine never fails a request
// outright, so the HTTP status is 200 whenever the body decodes; error
// detail travels in the response envelope.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	requestID := uuid.NewString()
	resp := h.engine.Chat(r.Context(), &req)
	if resp.Error != "" {
		h.logger.Warn("chat request failed",
			zap.String("request_id", requestID),
			zap.String("client_id", req.ClientID),
			zap.String("error", resp.Error))
	} else {
		h.logger.Info("chat request served",
			zap.String("request_id", requestID),
			zap.String("client_id", req.ClientID),
			zap.String("mode", resp.Mode),
			zap.Bool("cached", resp.Cached))
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}
