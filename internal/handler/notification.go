package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/togetherplan/internal/auth"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/notify"
)

type NotificationHandler struct {
	inbox  *notify.Inbox
	logger *slog.Logger
}

func NewNotificationHandler(inbox *notify.Inbox, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, logger: logger}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.inbox.ListUnread(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.MarkRead(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "notification marked as read")
}
