package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

func TestBuildNotifier(t *testing.T) {
	twilioCreds := ProviderSelectionConfig{
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "token",
		TwilioFromNumber: "+27110000000",
	}
	apiCreds := ProviderSelectionConfig{SMSAPIURL: "https://sms.example.com/send", SMSAPIKey: "live"}
	both := twilioCreds
	both.SMSAPIURL, both.SMSAPIKey = apiCreds.SMSAPIURL, apiCreds.SMSAPIKey

	tests := []struct {
		name         string
		cfg          ProviderSelectionConfig
		wantProvider string
		wantType     any
		wantNil      bool
		wantReason   bool
	}{
		{name: "auto none falls back to demo", cfg: ProviderSelectionConfig{}, wantProvider: SMSProviderDemo, wantType: &DemoNotifier{}, wantReason: true},
		{name: "auto demo key treated as unset", cfg: ProviderSelectionConfig{SMSAPIURL: "https://x", SMSAPIKey: "demo-key"}, wantProvider: SMSProviderDemo, wantType: &DemoNotifier{}, wantReason: true},
		{name: "auto twilio", cfg: twilioCreds, wantProvider: SMSProviderTwilio, wantType: &TwilioNotifier{}},
		{name: "auto api", cfg: apiCreds, wantProvider: SMSProviderAPI, wantType: &SMSAPINotifier{}},
		{name: "auto both fails over", cfg: both, wantProvider: "twilio+smsapi", wantType: &FailoverNotifier{}},
		{name: "forced twilio missing", cfg: ProviderSelectionConfig{Preference: "twilio"}, wantNil: true, wantReason: true},
		{name: "forced api", cfg: ProviderSelectionConfig{Preference: "SMSAPI", SMSAPIURL: "https://x", SMSAPIKey: "k"}, wantProvider: SMSProviderAPI, wantType: &SMSAPINotifier{}},
		{name: "forced demo", cfg: ProviderSelectionConfig{Preference: "demo", SMSAPIURL: "https://x", SMSAPIKey: "k"}, wantProvider: SMSProviderDemo, wantType: &DemoNotifier{}},
		{name: "unknown", cfg: ProviderSelectionConfig{Preference: "carrier-pigeon"}, wantNil: true, wantReason: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, provider, reason := BuildNotifier(tc.cfg, logging.New("error"))
			if tc.wantNil {
				assert.Nil(t, n)
				assert.Empty(t, provider)
			} else {
				require.NotNil(t, n)
				assert.Equal(t, tc.wantProvider, provider)
				assert.IsType(t, tc.wantType, n)
			}
			if tc.wantReason {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestBuildNotifierReasonListsMissingVars(t *testing.T) {
	_, _, reason := BuildNotifier(ProviderSelectionConfig{Preference: "twilio", TwilioAccountSID: "AC1"}, nil)
	assert.Contains(t, reason, "TWILIO_AUTH_TOKEN missing")
	assert.Contains(t, reason, "TWILIO_FROM_NUMBER missing")
	assert.NotContains(t, reason, "TWILIO_ACCOUNT_SID")
}
