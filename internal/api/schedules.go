package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reedfamily/craftbridge/internal/scheduler"
)

type ScheduleHandler struct {
	store     *scheduler.Store
	scheduler *scheduler.Scheduler
}

func NewScheduleHandler(store *scheduler.Store, sched *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{store: store, scheduler: sched}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		CronExpr string `json:"cron_expr"`
		Action   string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.CronExpr == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "name, cron_expr, and action required")
		return
	}

	s, err := h.store.Create(r.Context(), req.Name, req.CronExpr, req.Action)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p scheduler.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := h.store.Update(r.Context(), chi.URLParam(r, "scheduleId"), p)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "scheduleId")); err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "schedule deleted"})
}

// Run executes a schedule's action now, regardless of its cron expression.
func (h *ScheduleHandler) Run(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context(), chi.URLParam(r, "scheduleId"))
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	result, err := h.scheduler.Run(r.Context(), s)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

func writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule not found")
	case errors.Is(err, scheduler.ErrInvalidCron), errors.Is(err, scheduler.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
