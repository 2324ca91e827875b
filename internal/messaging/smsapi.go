package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

var smsAPITracer = otel.Tracer("stylebook.internal.messaging.smsapi")

// SMSAPINotifier posts messages to a generic JSON SMS gateway:
//
//	POST <url>
//	Authorization: Bearer <key>
//	{"to": "...", "message": "...", "from": "<salon name>"}
//
// The gateway answers {"messageId": "..."}; a missing id is replaced by
// msg_<unix millis>.
type SMSAPINotifier struct {
	url         string
	apiKey      string
	sender      string
	countryCode string
	httpClient  *http.Client
	logger      *logging.Logger
	now         func() time.Time
}

// NewSMSAPINotifier builds a gateway client. sender is the display name sent
// as "from".
func NewSMSAPINotifier(url, apiKey, sender, countryCode string, logger *logging.Logger) *SMSAPINotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &SMSAPINotifier{
		url:         strings.TrimSpace(url),
		apiKey:      strings.TrimSpace(apiKey),
		sender:      sender,
		countryCode: countryCode,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		now:         time.Now,
	}
}

var _ Notifier = (*SMSAPINotifier)(nil)

type smsAPIRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

type smsAPIResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

func (n *SMSAPINotifier) Send(ctx context.Context, to, body string) (string, error) {
	if err := validateMessage(to, body); err != nil {
		return "", err
	}
	if n.url == "" || n.apiKey == "" {
		return "", errors.New("messaging: sms api not configured")
	}
	dest := NormalizeE164(to, n.countryCode)
	if dest == "" {
		return "", ErrMissingRecipient
	}

	ctx, span := smsAPITracer.Start(ctx, "messaging.smsapi.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("stylebook.sms.provider", SMSProviderAPI),
		attribute.String("stylebook.sms.to", maskPhone(dest)),
	)

	payload, err := json.Marshal(smsAPIRequest{To: dest, Message: body, From: n.sender})
	if err != nil {
		return "", fmt.Errorf("messaging: encode sms api payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("messaging: build sms api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("messaging: sms api request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var parsed smsAPIResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(parsed.Error)
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		err := fmt.Errorf("messaging: sms api send failed: status %d: %s", resp.StatusCode, detail)
		span.RecordError(err)
		span.SetStatus(codes.Error, "non-2xx response")
		return "", err
	}

	id := strings.TrimSpace(parsed.MessageID)
	if id == "" {
		id = "msg_" + strconv.FormatInt(n.now().UnixMilli(), 10)
	}
	span.SetAttributes(attribute.String("stylebook.sms.message_id", id))
	n.logger.Info("sms api message sent", "to", maskPhone(dest), "message_id", id)
	return id, nil
}
