package reminders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

// Handler exposes the scheduler over HTTP.
type Handler struct {
	scheduler *Scheduler
	logger    *logging.Logger
}

func NewHandler(scheduler *Scheduler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scheduler: scheduler, logger: logger}
}

// RegisterRoutes mounts the public endpoints (expected under /api/v1).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reminders", h.schedule)
	r.Get("/orders/{orderID}/reminders", h.listByOrder)
	r.Delete("/orders/{orderID}/reminders", h.cancel)
}

// RegisterAdminRoutes mounts the dashboard listing (expected under /admin).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/reminders", h.list)
	r.Get("/reminders/stats", h.stats)
}

type scheduleRequest struct {
	OrderID         string `json:"order_id"`
	Recipient       string `json:"recipient"`
	RecipientName   string `json:"recipient_name"`
	ServiceLabel    string `json:"service_label"`
	AppointmentTime string `json:"appointment_time"`
	Lead            string `json:"lead,omitempty"`
}

type scheduleResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	OrderID  string    `json:"order_id"`
	FireTime time.Time `json:"fire_time"`
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	now := h.scheduler.Now()
	appointment, err := ParseAppointmentTime(body.AppointmentTime, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var lead time.Duration
	if strings.TrimSpace(body.Lead) != "" {
		lead, err = time.ParseDuration(strings.TrimSpace(body.Lead))
		if err != nil || lead <= 0 {
			writeError(w, http.StatusBadRequest, "lead must be a positive duration such as 5m")
			return
		}
	}

	id, err := h.scheduler.Schedule(r.Context(), ScheduleRequest{
		OrderID:         body.OrderID,
		Recipient:       body.Recipient,
		RecipientName:   body.RecipientName,
		ServiceLabel:    body.ServiceLabel,
		AppointmentTime: appointment,
		LeadDuration:    lead,
	})
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	if lead == 0 {
		lead = h.scheduler.DefaultLead()
	}
	writeJSON(w, http.StatusCreated, scheduleResponse{
		JobID:    id,
		OrderID:  strings.TrimSpace(body.OrderID),
		FireTime: appointment.Add(-lead),
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	cancelled, err := h.scheduler.Cancel(r.Context(), orderID)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":  orderID,
		"cancelled": cancelled,
	})
}

func (h *Handler) listByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	jobs, err := h.scheduler.ListByOrder(r.Context(), orderID)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reminders": nonNil(jobs),
		"count":     len(jobs),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))

	var jobs []Job
	var err error
	switch {
	case filter == "" || filter == string(StatusScheduled):
		jobs, err = h.scheduler.ListScheduled(r.Context())
	case filter == "all":
		jobs, err = h.scheduler.ListAll(r.Context())
	case Status(filter).Valid():
		jobs, err = h.scheduler.ListAll(r.Context())
		jobs = filterStatus(jobs, Status(filter))
	default:
		writeError(w, http.StatusBadRequest, "status must be one of scheduled, sent, failed, cancelled, all")
		return
	}
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reminders": nonNil(jobs),
		"count":     len(jobs),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scheduler.Stats(r.Context())
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeSchedulerError(w http.ResponseWriter, err error) {
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTooLate):
		writeError(w, http.StatusUnprocessableEntity, "appointment is too soon to schedule a reminder")
	case errors.As(err, &perr), errors.Is(err, ErrClosed):
		h.logger.Error("reminders handler: store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reminder store unavailable")
	default:
		h.logger.Error("reminders handler: unexpected error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ParseAppointmentTime accepts an RFC3339 timestamp or a relative offset
// such as "+10m" measured from now.
func ParseAppointmentTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("appointment_time is required")
	}
	if strings.HasPrefix(raw, "+") {
		d, err := time.ParseDuration(raw[1:])
		if err != nil {
			return time.Time{}, errors.New("appointment_time offset must look like +10m")
		}
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("appointment_time must be RFC3339 or a +duration offset")
	}
	return t, nil
}

func filterStatus(jobs []Job, status Status) []Job {
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

func nonNil(jobs []Job) []Job {
	if jobs == nil {
		return []Job{}
	}
	return jobs
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
