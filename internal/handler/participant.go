package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/togetherplan/internal/auth"
	"github.com/dukerupert/togetherplan/internal/scheduling"
)

type ParticipantHandler struct {
	svc    *scheduling.Service
	logger *slog.Logger
}

func NewParticipantHandler(svc *scheduling.Service, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{svc: svc, logger: logger}
}

type inviteRequest struct {
	Emails []string `json:"emails"`
}

// Invite responds with a map of email to outcome.
func (h *ParticipantHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := h.svc.Invite(r.Context(), auth.UserID(r.Context()), id, req.Emails)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type respondRequest struct {
	Status string `json:"status"`
}

func (h *ParticipantHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req respondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.Respond(r.Context(), auth.UserID(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "invitation " + string(p.Status),
		"participant": p,
	})
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	list, err := h.svc.ListParticipants(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
