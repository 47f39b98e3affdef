package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/togetherplan/internal/auth"
	"github.com/dukerupert/togetherplan/internal/scheduling"
)

type VoteHandler struct {
	svc    *scheduling.Service
	logger *slog.Logger
}

func NewVoteHandler(svc *scheduling.Service, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{svc: svc, logger: logger}
}

type voteRequest struct {
	DateOptionID int64  `json:"date_option_id"`
	Vote         string `json:"vote"`
}

func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CastVote(r.Context(), auth.UserID(r.Context()), req.DateOptionID, req.Vote)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
