package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers every route and wraps the router in the middleware
// chain. CORS sits outside the router so preflight requests never hit a
// method matcher.
func NewRouter(h *Handlers) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/analyze", h.AnalyzeHandler).Methods(http.MethodPost)

	chats := router.PathPrefix("/chats").Subrouter()
	chats.HandleFunc("/create", h.CreateChatHandler).Methods(http.MethodPost)
	chats.HandleFunc("/getAllChats", h.ListChatsHandler).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}", h.GetChatHandler).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}", h.DeleteChatHandler).Methods(http.MethodDelete)
	chats.HandleFunc("/{chatId}/messages", h.AddMessageHandler).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/messages", h.ListMessagesHandler).Methods(http.MethodGet)

	router.HandleFunc("/ws", h.WebSocketHandler)

	return WithRequestID(WithRequestLog(WithCORS(router)))
}
