package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

var twilioTracer = otel.Tracer("stylebook.internal.messaging.twilio")

// twilioMessageAPI is the slice of the twilio-go REST client used for sends.
type twilioMessageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends SMS through Twilio's Messages API.
type TwilioNotifier struct {
	api         twilioMessageAPI
	from        string
	countryCode string
	logger      *logging.Logger
}

// NewTwilioNotifier builds a notifier backed by the official twilio-go client.
func NewTwilioNotifier(accountSID, authToken, from, countryCode string, logger *logging.Logger) *TwilioNotifier {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioNotifier(rest.Api, from, countryCode, logger)
}

func newTwilioNotifier(api twilioMessageAPI, from, countryCode string, logger *logging.Logger) *TwilioNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &TwilioNotifier{
		api:         api,
		from:        strings.TrimSpace(from),
		countryCode: countryCode,
		logger:      logger,
	}
}

var _ Notifier = (*TwilioNotifier)(nil)

// Send dispatches one SMS. The twilio-go client does not take a context, so
// the call runs in a goroutine and Send returns early when ctx is done.
func (n *TwilioNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if err := validateMessage(to, body); err != nil {
		return "", err
	}
	if n.from == "" {
		return "", errors.New("messaging: twilio from number not configured")
	}
	dest := NormalizeE164(to, n.countryCode)
	if dest == "" {
		return "", ErrMissingRecipient
	}

	ctx, span := twilioTracer.Start(ctx, "messaging.twilio.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("stylebook.sms.provider", SMSProviderTwilio),
		attribute.String("stylebook.sms.to", maskPhone(dest)),
	)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(dest)
	params.SetFrom(n.from)
	params.SetBody(body)

	type result struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := n.api.CreateMessage(params)
		done <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "context done")
		return "", fmt.Errorf("messaging: twilio send: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			err := describeTwilioError(res.err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "create message failed")
			return "", err
		}
		sid := ""
		if res.msg != nil && res.msg.Sid != nil {
			sid = *res.msg.Sid
		}
		span.SetAttributes(attribute.String("stylebook.sms.message_id", sid))
		n.logger.Info("twilio sms sent", "to", maskPhone(dest), "sid", sid)
		return sid, nil
	}
}

func describeTwilioError(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Code != 0 {
			return fmt.Errorf("messaging: twilio send failed: status %d code %d: %s", restErr.Status, restErr.Code, restErr.Message)
		}
		return fmt.Errorf("messaging: twilio send failed: status %d: %s", restErr.Status, restErr.Message)
	}
	return fmt.Errorf("messaging: twilio send failed: %w", err)
}
