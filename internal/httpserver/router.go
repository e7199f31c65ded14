package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/service"
)

// Deps is everything the router needs.
type Deps struct {
	CORSOrigins []string
	Tokens      *security.TokenService
	Logger      *log.Logger

	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer

	Auth          *service.AuthService
	Users         *service.UserService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Notifications *service.NotificationService
	Threads       *service.ThreadService
	Query         *service.QueryService
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(d.Auth))
			r.Post("/login", handleLogin(d.Auth))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens, d.Users, d.Logger))

			r.Get("/auth/me", handleMe())
			r.Post("/account/delete", handleDeleteAccount(d.Users))

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(d.Conversations))
				r.Get("/", handleListConversations(d.Query))
				r.Get("/{conversationID}", handleGetConversation(d.Conversations))
				r.Put("/{conversationID}/participants", handleUpdateParticipants(d.Conversations))
				r.Post("/{conversationID}/messages", handleCreateConversationMessage(d.Messages))
				r.Get("/{conversationID}/messages/cached", handleCachedView(d.Query))
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", handleCreateDirectMessage(d.Messages))
				r.Get("/", handleListMessages(d.Query))
				r.Get("/{messageID}", handleGetMessage(d.Messages))
				r.Patch("/{messageID}", handleEditMessage(d.Messages))
				r.Delete("/{messageID}", handleDeleteMessage(d.Messages))
				r.Get("/{messageID}/history", handleMessageHistory(d.Messages))
			})

			r.Get("/threads/{messageID}", handleThread(d.Threads))

			r.Route("/inbox", func(r chi.Router) {
				r.Get("/unread", handleUnread(d.Notifications))
				r.Post("/{messageID}/read", handleMarkRead(d.Notifications))
			})
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto status codes. Server-side failures are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransient):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		loggerFrom(r).Error("request failed", "path", r.URL.Path, "err", err)
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pageRequest(r *http.Request) service.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return service.PageRequest{Page: page, PageSize: size}
}
