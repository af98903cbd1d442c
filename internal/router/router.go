package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/websocket"
)

const maxRequestBody = 64 << 10

// New wires the HTTP surface. wsHub may be nil when no Redis is configured,
// in which case the live update endpoint is not mounted.
func New(
	jwtAuth *middleware.JWTAuth,
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	frontendURL string,
	chatLimiter *middleware.RateLimiter,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))
	r.Use(middleware.MaxBody(maxRequestBody))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Conversation Routes ────
		r.Route("/conversation", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(chatLimiter.Middleware)
			r.Post("/message", chatHandler.SendMessage)
			r.Get("/transcript", chatHandler.GetTranscript)
			r.Delete("/transcript", chatHandler.ResetTranscript)
		})

		// ──── Legacy Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(chatLimiter.Middleware)
			r.Post("/new", chatHandler.SendMessage)
			r.Get("/all-chats", chatHandler.GetTranscript)
			r.Delete("/delete", chatHandler.ResetTranscript)
		})

		// ──── WebSocket ────
		if wsHub != nil {
			r.Get("/ws", wsHub.HandleWebSocket)
		}
	})

	return r
}
