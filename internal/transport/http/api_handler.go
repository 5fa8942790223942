package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/content"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/session"
)

// APIHandler serves the host-facing REST surface and the polling fallback
// for clients without a websocket.
type APIHandler struct {
	service *app.Service
	log     zerolog.Logger
}

func NewAPIHandler(service *app.Service, log zerolog.Logger) *APIHandler {
	return &APIHandler{service: service, log: log}
}

type createSessionRequest struct {
	HostID   string           `json:"hostId"`
	Quizzes  []string         `json:"quizzes"`
	Mode     string           `json:"mode"`
	Count    int              `json:"count"`
	Start    int              `json:"start"`
	End      int              `json:"end"`
	Order    string           `json:"order"`
	Seed     int64            `json:"seed"`
	Settings *settingsPayload `json:"settings"`
}

type joinRequest struct {
	RoomCode      string `json:"roomCode"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

// Register installs the REST routes on a mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.createSession)
	mux.HandleFunc("/sessions/join", h.join)
	mux.HandleFunc("/sessions/", h.sessionSubresource)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidCommand)
		return
	}

	settings := session.DefaultSettings()
	if req.Settings != nil {
		settings = session.Settings{
			HideLeaderboard: req.Settings.HideLeaderboard,
			JoiningOpen:     req.Settings.JoiningOpen,
			ShowPIN:         req.Settings.ShowPIN,
		}
	}
	mode := content.Mode(req.Mode)
	if mode == "" {
		mode = content.ModeAll
	}
	order := content.Order(req.Order)
	if order == "" {
		order = content.OrderSequential
	}

	created, err := h.service.CreateSession(r.Context(), req.HostID, content.Selection{
		QuizIDs: req.Quizzes,
		Mode:    mode,
		Count:   req.Count,
		Start:   req.Start,
		End:     req.End,
		Order:   order,
		Seed:    req.Seed,
	}, settings)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomCode == "" || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidCommand)
		return
	}

	joined, err := h.service.Join(r.Context(), req.RoomCode, req.ParticipantID, req.DisplayName)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

// sessionSubresource handles /sessions/{id}/state and /sessions/{id}/summary.
func (h *APIHandler) sessionSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	switch parts[1] {
	case "state":
		snap, err := h.service.Snapshot(sessionID, r.URL.Query().Get("participantId"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case "summary":
		summary, err := h.service.Summary(r.Context(), sessionID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Code: domain.ReasonCode(err), Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBanned), errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrJoiningClosed), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
