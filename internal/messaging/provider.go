package messaging

import (
	"fmt"
	"strings"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

const (
	// SMSProviderAuto prefers Twilio, falls back to the SMS API, and finally to demo mode.
	SMSProviderAuto = "auto"
	// SMSProviderTwilio forces the Twilio notifier when credentials exist.
	SMSProviderTwilio = "twilio"
	// SMSProviderAPI forces the JSON SMS gateway when credentials exist.
	SMSProviderAPI = "smsapi"
	// SMSProviderDemo logs messages without sending.
	SMSProviderDemo = "demo"

	// demoAPIKey is the placeholder key shipped in sample env files.
	demoAPIKey = "demo-key"
)

// ProviderSelectionConfig captures the credentials required to build outbound notifiers.
type ProviderSelectionConfig struct {
	Preference       string
	CountryCode      string
	SenderName       string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	SMSAPIURL        string
	SMSAPIKey        string
}

// BuildNotifier instantiates a Notifier based on the preferred provider.
// It returns the notifier, the provider that was selected, and a reason when
// the preferred provider could not be initialized. In auto mode a missing
// provider degrades to demo mode, so the notifier is never nil there.
func BuildNotifier(cfg ProviderSelectionConfig, logger *logging.Logger) (Notifier, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}

	missing := map[string]string{}
	var twilioNotifier, apiNotifier Notifier

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		twilioNotifier = NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.CountryCode, logger)
	} else {
		var reasons []string
		if cfg.TwilioAccountSID == "" {
			reasons = append(reasons, "TWILIO_ACCOUNT_SID missing")
		}
		if cfg.TwilioAuthToken == "" {
			reasons = append(reasons, "TWILIO_AUTH_TOKEN missing")
		}
		if cfg.TwilioFromNumber == "" {
			reasons = append(reasons, "TWILIO_FROM_NUMBER missing")
		}
		missing[SMSProviderTwilio] = strings.Join(reasons, ", ")
	}

	apiKey := strings.TrimSpace(cfg.SMSAPIKey)
	if apiKey == demoAPIKey {
		apiKey = ""
	}
	if cfg.SMSAPIURL != "" && apiKey != "" {
		apiNotifier = NewSMSAPINotifier(cfg.SMSAPIURL, apiKey, cfg.SenderName, cfg.CountryCode, logger)
	} else {
		var reasons []string
		if cfg.SMSAPIURL == "" {
			reasons = append(reasons, "SMS_API_URL missing")
		}
		if apiKey == "" {
			reasons = append(reasons, "SMS_API_KEY missing")
		}
		missing[SMSProviderAPI] = strings.Join(reasons, ", ")
	}

	switch preference {
	case SMSProviderDemo:
		return NewDemoNotifier(logger), SMSProviderDemo, ""
	case SMSProviderTwilio:
		if twilioNotifier != nil {
			return twilioNotifier, SMSProviderTwilio, ""
		}
		return nil, "", missing[SMSProviderTwilio]
	case SMSProviderAPI:
		if apiNotifier != nil {
			return apiNotifier, SMSProviderAPI, ""
		}
		return nil, "", missing[SMSProviderAPI]
	case SMSProviderAuto:
	default:
		return nil, "", fmt.Sprintf("unknown SMS provider %q", preference)
	}

	switch {
	case twilioNotifier != nil && apiNotifier != nil:
		return NewFailoverNotifier(twilioNotifier, SMSProviderTwilio, apiNotifier, SMSProviderAPI, logger), SMSProviderTwilio + "+" + SMSProviderAPI, ""
	case twilioNotifier != nil:
		return twilioNotifier, SMSProviderTwilio, ""
	case apiNotifier != nil:
		return apiNotifier, SMSProviderAPI, ""
	}
	reason := fmt.Sprintf("no SMS provider configured (twilio: %s; smsapi: %s)", missing[SMSProviderTwilio], missing[SMSProviderAPI])
	return NewDemoNotifier(logger), SMSProviderDemo, reason
}
