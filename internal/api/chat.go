package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/docent-ai/docent/internal/chat"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/session"
)

// maxRequestBody bounds inbound chat payloads.
const maxRequestBody = 1 << 20

// chatHandler serves the synchronous and streaming chat endpoints.
type chatHandler struct {
	service *chat.Service
	logger  log.Logger
}

// chatRequest is the inbound JSON body of both chat endpoints.
type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
}

// SSE payloads. Token content is base64 encoded so control characters in
// model output cannot break the line-oriented framing; the encoding field
// tells the consumer how to decode.
type metaPayload struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId"`
	Sources   []session.Source `json:"sources"`
}

type tokenPayload struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type donePayload struct {
	Type string `json:"type"`
}

type errorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// send handles POST /api/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	reply, err := h.service.Answer(r.Context(), chat.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		Mode:      req.Mode,
	})
	if err != nil {
		h.writeAnswerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply, h.logger)
}

func (h *chatHandler) writeAnswerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message_required", "message is required", h.logger)
	case errors.Is(err, chat.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "unknown_mode", err.Error(), h.logger)
	case errors.Is(err, llm.ErrUpstream):
		h.logger.Error("chat request failed upstream", "error", err)
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to generate answer", h.logger)
	default:
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate answer", h.logger)
	}
}

// stream handles POST /api/chat/stream as Server-Sent Events.
//
// Each event is one `data:` line carrying a JSON object with a type
// discriminator: meta, token, done or error.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeEvent(w, flusher, errorPayload{Type: chat.EventError, Error: "invalid request body"})
		h.writeEvent(w, flusher, donePayload{Type: chat.EventDone})
		return
	}

	events := h.service.Stream(r.Context(), chat.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		Mode:      req.Mode,
	})

	for ev := range events {
		switch ev.Type {
		case chat.EventMeta:
			sources := ev.Sources
			if sources == nil {
				sources = []session.Source{}
			}
			h.writeEvent(w, flusher, metaPayload{
				Type:      chat.EventMeta,
				SessionID: ev.SessionID,
				Sources:   sources,
			})
		case chat.EventToken:
			h.writeEvent(w, flusher, tokenPayload{
				Type:     chat.EventToken,
				Content:  base64.StdEncoding.EncodeToString([]byte(ev.Content)),
				Encoding: "base64",
			})
		case chat.EventDone:
			h.writeEvent(w, flusher, donePayload{Type: chat.EventDone})
		case chat.EventError:
			h.writeEvent(w, flusher, errorPayload{Type: chat.EventError, Error: ev.Error})
		}
	}
}

// writeEvent serializes one SSE event and flushes it to the client.
func (h *chatHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		h.logger.Debug("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}
