package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"audio-advisor/pkg/apperr"
	"audio-advisor/pkg/logging"
	"audio-advisor/pkg/models"
	"audio-advisor/pkg/pipeline"
	"audio-advisor/pkg/storage"

	"github.com/gorilla/mux"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (models.AnalysisResponse, error)
}

type Options struct {
	MaxUploadBytes int64
	// Development exposes wrapped internal error text in 500 responses.
	Development bool
}

type Handlers struct {
	analyzer Analyzer
	store    storage.ChatStore
	hub      *Hub
	opts     Options
}

func NewHandlers(analyzer Analyzer, store storage.ChatStore, hub *Hub, opts Options) *Handlers {
	if hub == nil {
		hub = NewHub()
	}
	return &Handlers{
		analyzer: analyzer,
		store:    store,
		hub:      hub,
		opts:     opts,
	}
}

func (h *Handlers) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartMemory)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, r, apperr.Newf(apperr.ErrInvalidInput, "receive", "upload exceeds %d bytes", h.opts.MaxUploadBytes))
		case errors.Is(err, http.ErrNotMultipart):
			h.writeError(w, r, apperr.ErrMissingAudio)
		default:
			h.writeError(w, r, apperr.New(apperr.ErrInvalidInput, "parse form", err))
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			h.writeError(w, r, apperr.ErrMissingAudio)
			return
		}
		h.writeError(w, r, apperr.New(apperr.ErrInvalidInput, "read upload", err))
		return
	}
	defer file.Close()

	req := pipeline.Request{
		Audio: &pipeline.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		},
		Prompt: r.FormValue("prompt"),
	}

	// A client disconnect does not abort a running analysis.
	resp, err := h.analyzer.Analyze(context.WithoutCancel(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type createChatRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var body createChatRequest
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.store.CreateChat(r.Context(), body.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("chat created", "chat_id", chat.ID)
	writeJSON(w, http.StatusCreated, chat)
}

func (h *Handlers) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.ListChats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *Handlers) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	chat, err := h.store.GetChat(r.Context(), mux.Vars(r)["chatId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type addMessageRequest struct {
	Role    models.Role `json:"role"`
	Text    string      `json:"text"`
	Audio   string      `json:"audio"`
	AudioID string      `json:"audioId"`
}

func (h *Handlers) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]

	var body addMessageRequest
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	body.Role = models.Role(strings.ToLower(strings.TrimSpace(string(body.Role))))
	if !body.Role.Valid() {
		h.writeError(w, r, apperr.Newf(apperr.ErrInvalidInput, "add message", "role must be %q or %q", models.RoleUser, models.RoleAssistant))
		return
	}

	msg, err := h.store.AddMessage(r.Context(), chatID, models.Message{
		Role:    body.Role,
		Text:    body.Text,
		Audio:   body.Audio,
		AudioID: body.AudioID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.hub.Publish(chatID, WebSocketMessage{
		Type:   EventMessageCreated,
		ChatID: chatID,
		Data:   mustMarshal(msg),
	})
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.store.ListMessages(r.Context(), mux.Vars(r)["chatId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	if err := h.store.DeleteChat(r.Context(), chatID); err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("chat deleted", "chat_id", chatID)
	h.hub.Publish(chatID, WebSocketMessage{Type: EventChatDeleted, ChatID: chatID})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  h.store.Driver(),
	})
}

// decodeOptionalJSON decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.New(apperr.ErrInvalidInput, "decode body", err)
}
