package bookings

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stylebook/salon-reminders/internal/events"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

// Handler exposes the booking flow over HTTP.
type Handler struct {
	service   *Service
	publisher *Publisher
	logger    *logging.Logger
}

// NewHandler builds the handler. publisher may be nil, in which case
// ?async=true requests are rejected.
func NewHandler(service *Service, publisher *Publisher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, publisher: publisher, logger: logger}
}

// RegisterRoutes mounts the booking endpoints (expected under /api/v1).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings/confirmations", h.confirm)
	r.Delete("/bookings/{orderID}", h.cancel)
}

type confirmRequest struct {
	OrderID         string   `json:"order_id"`
	AppointmentTime string   `json:"appointment_time"`
	Clients         []Client `json:"clients"`
	Lead            string   `json:"lead,omitempty"`
	TotalCents      int64    `json:"total_cents,omitempty"`
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var body confirmRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appointment, err := reminders.ParseAppointmentTime(body.AppointmentTime, h.service.scheduler.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var lead time.Duration
	if raw := strings.TrimSpace(body.Lead); raw != "" {
		lead, err = time.ParseDuration(raw)
		if err != nil || lead <= 0 {
			writeError(w, http.StatusBadRequest, "lead must be a positive duration such as 5m")
			return
		}
	}
	confirmation := Confirmation{
		OrderID:         body.OrderID,
		AppointmentTime: appointment,
		Clients:         body.Clients,
		Lead:            lead,
		TotalCents:      body.TotalCents,
	}

	if r.URL.Query().Get("async") == "true" {
		h.enqueueConfirmation(w, r, confirmation)
		return
	}

	result, err := h.service.Confirm(r.Context(), confirmation)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) enqueueConfirmation(w http.ResponseWriter, r *http.Request, c Confirmation) {
	if h.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "booking queue not configured")
		return
	}
	if strings.TrimSpace(c.OrderID) == "" || len(c.Clients) == 0 {
		writeError(w, http.StatusBadRequest, "order_id and clients are required")
		return
	}
	clients := make([]events.BookedClient, 0, len(c.Clients))
	for _, client := range c.Clients {
		clients = append(clients, events.BookedClient{Name: client.Name, Phone: client.Phone, ServiceLabel: client.ServiceLabel})
	}
	env, err := h.publisher.Publish(r.Context(), strings.TrimSpace(c.OrderID), events.BookingConfirmedV1{
		OrderID:         strings.TrimSpace(c.OrderID),
		AppointmentTime: c.AppointmentTime,
		Clients:         clients,
		LeadSeconds:     int64(c.Lead / time.Second),
		TotalCents:      c.TotalCents,
		ConfirmedAt:     h.service.scheduler.Now(),
	})
	if err != nil {
		h.logger.Error("bookings handler: enqueue failed", "error", err, "order_id", c.OrderID)
		writeError(w, http.StatusServiceUnavailable, "booking queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"order_id": strings.TrimSpace(c.OrderID),
		"event_id": env.EventID,
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Cancel(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var perr *reminders.PersistenceError
	switch {
	case errors.Is(err, ErrInvalidBooking), errors.Is(err, reminders.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &perr), errors.Is(err, reminders.ErrClosed):
		h.logger.Error("bookings handler: reminder store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reminder store unavailable")
	default:
		h.logger.Error("bookings handler: unexpected error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
