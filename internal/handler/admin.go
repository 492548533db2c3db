package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/studibot/internal/credentials"
	"github.com/pavelanni/studibot/internal/model"
)

func (h *Handler) handleGetCredentials(w http.ResponseWriter, _ *http.Request) {
	c, err := h.creds.Load()
	if errors.Is(err, credentials.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no stored credentials")
		return
	}
	if err != nil {
		slog.Error("failed to load credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !h.config.ExposeCredentials {
		c = credentials.Masked(c)
	}
	writeJSON(w, http.StatusOK, c)
}

// handleSaveCredentials stores the posted fields. Empty fields keep the
// stored value, so the API key can be replaced on its own.
func (h *Handler) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	var in model.Credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Username == "" && in.Password == "" && in.APIKey == "" {
		writeError(w, http.StatusBadRequest, "username, password or api_key required")
		return
	}

	cur, err := h.creds.Load()
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		slog.Warn("replacing unreadable credentials", "error", err)
	}
	if in.Username != "" {
		cur.Username = in.Username
	}
	if in.Password != "" {
		cur.Password = in.Password
	}
	if in.APIKey != "" {
		cur.APIKey = in.APIKey
	}

	if err := h.creds.Save(cur); err != nil {
		slog.Error("failed to save credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("credentials saved")
	writeJSON(w, http.StatusOK, credentials.Masked(cur))
}

func (h *Handler) handleDeleteCredentials(w http.ResponseWriter, _ *http.Request) {
	if err := h.creds.Delete(); err != nil {
		slog.Error("failed to delete credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("credentials deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleExport returns the turn log. ?since= takes RFC 3339 or YYYY-MM-DD.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	since, err := ParseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exp, err := h.admin.Export(since, h.now())
	if err != nil {
		slog.Error("failed to export turns", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// ParseSince parses an export lower bound. An empty string means no bound.
func ParseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.New("since must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}
