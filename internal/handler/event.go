package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/togetherplan/internal/auth"
	"github.com/dukerupert/togetherplan/internal/calendar"
	"github.com/dukerupert/togetherplan/internal/scheduling"
	"github.com/dukerupert/togetherplan/internal/store"
)

type EventHandler struct {
	svc     *scheduling.Service
	calHost string
	logger  *slog.Logger
}

// NewEventHandler serves event routes. calHost qualifies iCalendar UIDs.
func NewEventHandler(svc *scheduling.Service, calHost string, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, calHost: calHost, logger: logger}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.svc.ListEvents(r.Context(), auth.UserID(r.Context()), store.EventFilter{
		Location: q.Get("location"),
		Category: q.Get("category"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req scheduling.CreateEventInput
	if !decodeJSON(w, r, &req) {
		return
	}
	detail, err := h.svc.CreateEvent(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	detail, err := h.svc.GetEvent(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req scheduling.UpdateEventInput
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.UpdateEvent(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.DeleteEvent(r.Context(), auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "event deleted")
}

func (h *EventHandler) AddDateOption(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req scheduling.DateOptionInput
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.svc.AddDateOption(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// AddDateSeries proposes every date of a recurrence rule at once.
func (h *EventHandler) AddDateSeries(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req scheduling.DateSeriesInput
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, err := h.svc.AddDateSeries(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, opts)
}

func (h *EventHandler) BestDate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	best, err := h.svc.BestDate(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"best_date": best})
}

// Calendar serves the best date as text/calendar, or 404 before any vote.
func (h *EventHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx := r.Context()
	actor := auth.UserID(ctx)

	detail, err := h.svc.GetEvent(ctx, actor, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	best, err := h.svc.BestDate(ctx, actor, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if best == nil {
		writeMessage(w, http.StatusNotFound, "event has no best date yet")
		return
	}

	var buf bytes.Buffer
	if err := calendar.Encode(&buf, &detail.Event, best, h.calHost, time.Now()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%d.ics"`, id))
	w.Write(buf.Bytes())
}
