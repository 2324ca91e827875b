package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twilio/twilio-go/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stylebook/salon-reminders/internal/observability/metrics"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

var webhookTracer = otel.Tracer("stylebook.internal.messaging.webhooks")

// Delivery statuses reported by the SMS gateway callback.
const (
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
	DeliveryPending   = "pending"
)

// HandlerConfig wires the messaging HTTP endpoints.
type HandlerConfig struct {
	Notifier Notifier
	Provider string
	// TwilioAuthToken validates X-Twilio-Signature. Empty disables validation.
	TwilioAuthToken string
	Salon           reminders.Salon
	Metrics         *metrics.NotifierMetrics
	Logger          *logging.Logger
}

// Handler serves delivery status webhooks and the admin SMS tester.
type Handler struct {
	notifier  Notifier
	provider  string
	validator *client.RequestValidator
	salon     reminders.Salon
	metrics   *metrics.NotifierMetrics
	logger    *logging.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		notifier: cfg.Notifier,
		provider: cfg.Provider,
		salon:    cfg.Salon,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
	if token := strings.TrimSpace(cfg.TwilioAuthToken); token != "" {
		v := client.NewRequestValidator(token)
		h.validator = &v
	} else {
		logger.Warn("twilio status webhook signature validation disabled")
	}
	return h
}

// RegisterWebhookRoutes mounts provider callbacks (expected under /webhooks).
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/sms/status", h.smsStatus)
	r.Post("/twilio/status", h.twilioStatus)
}

// RegisterAdminRoutes mounts the SMS tester (expected under /admin).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/sms/test", h.sendTest)
}

type smsStatusPayload struct {
	MessageID   string `json:"messageId"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phoneNumber"`
	OrderID     string `json:"orderId"`
}

// smsStatus handles the JSON gateway's delivery callback.
func (h *Handler) smsStatus(w http.ResponseWriter, r *http.Request) {
	_, span := webhookTracer.Start(r.Context(), "messaging.smsapi.status")
	defer span.End()

	var payload smsStatusPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&payload); err != nil {
		span.RecordError(err)
		h.logger.Error("sms status webhook: invalid payload", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook processing failed"})
		return
	}
	status := strings.ToLower(strings.TrimSpace(payload.Status))
	span.SetAttributes(
		attribute.String("stylebook.sms.message_id", payload.MessageID),
		attribute.String("stylebook.sms.status", status),
		attribute.String("stylebook.order_id", payload.OrderID),
	)
	h.recordStatus(SMSProviderAPI, payload.MessageID, status, payload.PhoneNumber, payload.OrderID, "")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// twilioStatus handles Twilio's StatusCallback form posts.
func (h *Handler) twilioStatus(w http.ResponseWriter, r *http.Request) {
	_, span := webhookTracer.Start(r.Context(), "messaging.twilio.status")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for key := range r.PostForm {
			params[key] = r.PostForm.Get(key)
		}
		if !h.validator.Validate(buildAbsoluteURL(r), params, r.Header.Get("X-Twilio-Signature")) {
			err := errors.New("invalid twilio signature")
			span.RecordError(err)
			h.logger.Warn("twilio status webhook: invalid signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	sid := r.PostForm.Get("MessageSid")
	status := strings.ToLower(strings.TrimSpace(r.PostForm.Get("MessageStatus")))
	if sid == "" || status == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("stylebook.sms.message_id", sid),
		attribute.String("stylebook.sms.status", status),
	)
	h.recordStatus(SMSProviderTwilio, sid, status, r.PostForm.Get("To"), "", r.PostForm.Get("ErrorCode"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordStatus(provider, messageID, status, phone, orderID, errorCode string) {
	h.metrics.ObserveDeliveryStatus(provider, status)
	fields := []any{
		"provider", provider,
		"message_id", messageID,
		"status", status,
		"to", maskPhone(phone),
	}
	if orderID != "" {
		fields = append(fields, "order_id", orderID)
	}
	if errorCode != "" {
		fields = append(fields, "error_code", errorCode)
	}
	switch status {
	case DeliveryFailed, "undelivered":
		h.logger.Warn("sms delivery failed", fields...)
	case DeliveryDelivered:
		h.logger.Info("sms delivered", fields...)
	default:
		h.logger.Debug("sms delivery status", fields...)
	}
}

type testSMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	// Kind "reminder" renders the reminder template instead of Message.
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	ServiceLabel string `json:"service_label"`
}

type testSMSResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Provider  string `json:"provider"`
	Body      string `json:"body"`
	Error     string `json:"error,omitempty"`
}

// sendTest sends an ad-hoc message or a sample reminder through the live notifier.
func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request) {
	if h.notifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sms notifier not configured"})
		return
	}
	var req testSMSRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to is required"})
		return
	}

	body := req.Message
	if strings.EqualFold(strings.TrimSpace(req.Kind), "reminder") {
		now := time.Now()
		body = reminders.MessageTemplate(reminders.Job{
			OrderID:         "TEST-" + now.Format("150405"),
			RecipientName:   req.Name,
			ServiceLabel:    req.ServiceLabel,
			AppointmentTime: now.Add(30 * time.Minute),
			FireTime:        now,
		}, h.salon)
	}
	if strings.TrimSpace(body) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	id, err := h.notifier.Send(r.Context(), req.To, body)
	if err != nil {
		h.logger.Warn("test sms failed", "to", maskPhone(req.To), "error", err)
		writeJSON(w, http.StatusBadGateway, testSMSResponse{Provider: h.provider, Body: body, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, testSMSResponse{Success: true, MessageID: id, Provider: h.provider, Body: body})
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
