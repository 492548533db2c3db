package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/studibot/internal/model"
)

const maxBodyBytes = 1 << 20

// Chatter answers one chat turn.
type Chatter interface {
	Handle(ctx context.Context, req model.ChatRequest) model.ChatResponse
}

// CredentialStore is the local encrypted credential blob.
type CredentialStore interface {
	Load() (model.Credentials, error)
	Save(c model.Credentials) error
	Delete() error
}

// AdminStore serves the admin token and the turn log export.
type AdminStore interface {
	AdminTokenHash() (string, error)
	Export(since, now time.Time) (model.TurnExport, error)
}

// Config holds transport settings.
type Config struct {
	// ExposeCredentials returns stored secrets in clear from GET /credentials.
	ExposeCredentials bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	chat   Chatter
	creds  CredentialStore
	admin  AdminStore
	config Config
	now    func() time.Time
}

// New creates a new Handler. creds may be nil, which disables the
// credential endpoints.
func New(chat Chatter, creds CredentialStore, admin AdminStore, cfg Config) *Handler {
	return &Handler{chat: chat, creds: creds, admin: admin, config: cfg, now: time.Now}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Post("/chat", h.handleChat)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		if h.creds != nil {
			r.Get("/credentials", h.handleGetCredentials)
			r.Post("/credentials", h.handleSaveCredentials)
			r.Delete("/credentials", h.handleDeleteCredentials)
		}
		r.Get("/admin/export", h.handleExport)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, h.chat.Handle(r.Context(), req))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
