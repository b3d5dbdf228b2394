// Package httpapi exposes the one-shot REST surface: POST /v1/transcribe
// and GET /v1/capabilities. The handlers are thin; all behavior lives in
// the session use case.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voxalys/voxalys/internal/session"
)

// Handler serves the REST endpoints.
type Handler struct {
	uc     *session.UseCase
	logger *slog.Logger
}

// New returns a handler over the use case.
func New(uc *session.UseCase, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{uc: uc, logger: logger}
}

// Register adds the REST routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/transcribe", h.transcribe)
	mux.HandleFunc("GET /v1/capabilities", h.capabilities)
}

func (h *Handler) transcribe(w http.ResponseWriter, r *http.Request) {
	var req session.TranscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.uc.Transcribe(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			h.logger.Error("transcription failed", "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) capabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.uc.Capabilities())
}

// statusFor maps application errors onto HTTP statuses: validation 400,
// upstream 502, everything else 500.
func statusFor(err error) int {
	var ae *session.AppError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case session.KindValidation:
			return http.StatusBadRequest
		case session.KindUpstream:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
