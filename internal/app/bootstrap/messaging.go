package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/stylebook/salon-reminders/internal/config"
	"github.com/stylebook/salon-reminders/internal/messaging"
	"github.com/stylebook/salon-reminders/internal/notify"
	"github.com/stylebook/salon-reminders/internal/observability/metrics"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

// BuildNotifier selects the SMS provider and applies the standard wrappers:
// metrics innermost, then the outbound rate limit.
func BuildNotifier(cfg *appconfig.Config, m *metrics.NotifierMetrics, logger *logging.Logger) (messaging.Notifier, string, string) {
	if cfg == nil {
		return nil, "", "missing config"
	}
	notifier, provider, reason := messaging.BuildNotifier(messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		CountryCode:      cfg.SMSDefaultCountryCode,
		SenderName:       cfg.SalonName,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
		SMSAPIURL:        cfg.SMSAPIURL,
		SMSAPIKey:        cfg.SMSAPIKey,
	}, logger)
	if notifier == nil {
		return nil, provider, reason
	}

	notifier = messaging.NewInstrumentedNotifier(notifier, provider, m)
	notifier = messaging.NewRateLimitedNotifier(notifier, cfg.SMSRatePerSecond, cfg.SMSRateBurst)
	return notifier, provider, reason
}

// BuildAlerter wires the failure alert emails. Without ALERT_EMAIL it
// returns nil. A missing provider falls back to the logging stub so alerts
// still show up in logs.
func BuildAlerter(cfg *appconfig.Config, ses *sesv2.Client, salon reminders.Salon, logger *logging.Logger) *notify.FailureAlerter {
	if cfg == nil || strings.TrimSpace(cfg.AlertEmail) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		from := cfg.SESFromEmail
		if from == "" {
			from = cfg.SendGridFromEmail
		}
		if s := notify.NewSESSender(ses, notify.SESConfig{
			FromEmail:        from,
			FromName:         cfg.SendGridFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger); s != nil {
			sender = s
		}
	case "sendgrid", "":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			sender = s
		}
	}
	if sender == nil {
		logger.Warn("no email provider configured; failure alerts are logged only", "provider", cfg.EmailProvider)
		sender = notify.NewStubEmailSender(logger)
	}
	return notify.NewFailureAlerter(sender, notify.AlerterConfig{To: cfg.AlertEmail, Salon: salon}, logger)
}
