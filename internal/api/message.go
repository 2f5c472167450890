package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/exbordia/exbordia/internal/conversation"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/orchestrator"
)

const (
	// maxQueryLen caps the accepted query length in bytes.
	maxQueryLen = 4096

	// maxBodyBytes caps the request body size.
	maxBodyBytes = 64 * 1024

	// genericFailureMessage is what internal failures look like to the user.
	// No internal detail is leaked.
	genericFailureMessage = "Lo siento, ocurrió un error al procesar tu mensaje."
)

// Orchestrator is the message-processing pipeline behind POST /message.
type Orchestrator interface {
	ProcessMessage(ctx context.Context, telegramID, sessionID int64, query string) (*orchestrator.Reply, error)
}

// messageRequest is the body of POST /message.
type messageRequest struct {
	TelegramID int64  `json:"telegram_id"`
	SessionID  int64  `json:"session_id"`
	Query      string `json:"query"`
}

// messageResponse is the reply body of POST /message.
// session_id is serialized as a string on the wire.
type messageResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// messageHandler serves POST /message.
type messageHandler struct {
	pipeline Orchestrator
	logger   log.Logger
}

func (h *messageHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if req.TelegramID == 0 {
		writeError(w, http.StatusBadRequest, "missing_telegram_id", "telegram_id is required", h.logger)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "empty_query", "query is required", h.logger)
		return
	}
	if len(query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "query_too_long", "query exceeds the maximum length", h.logger)
		return
	}

	reply, err := h.pipeline.ProcessMessage(r.Context(), req.TelegramID, req.SessionID, query)
	if err != nil {
		if errors.Is(err, conversation.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "unknown_user", "unknown user", h.logger)
			return
		}
		h.logger.Error("message processing failed",
			"telegram_id", req.TelegramID,
			"session_id", req.SessionID,
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", genericFailureMessage, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Response:  reply.Response,
		SessionID: strconv.FormatInt(reply.SessionID, 10),
	}, h.logger)
}
