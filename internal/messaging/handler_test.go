package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylebook/salon-reminders/internal/observability/metrics"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

func newTestHandler(t *testing.T, n Notifier, authToken string) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := NewHandler(HandlerConfig{
		Notifier:        n,
		Provider:        "demo",
		TwilioAuthToken: authToken,
		Salon:           reminders.Salon{Name: "Glow Studio", Location: time.UTC},
		Metrics:         metrics.NewNotifierMetrics(reg),
		Logger:          logging.New("error"),
	})
	r := chi.NewRouter()
	r.Route("/webhooks", h.RegisterWebhookRoutes)
	r.Route("/admin", h.RegisterAdminRoutes)
	return r, reg
}

func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSMSStatusWebhook(t *testing.T) {
	router, reg := newTestHandler(t, NewDemoNotifier(nil), "")

	body := `{"messageId":"gw-1","status":"delivered","phoneNumber":"0821234567","orderId":"SB-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sms/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	count, err := testutil.GatherAndCount(reg, "stylebook_messaging_delivery_status_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/sms/status", strings.NewReader(`{`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwilioStatusWebhookSignature(t *testing.T) {
	const token = "twilio-secret"
	const target = "https://reminders.example.com/webhooks/twilio/status"
	router, _ := newTestHandler(t, NewDemoNotifier(nil), token)

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("MessageStatus", "delivered")
	form.Set("To", "+27821234567")

	send := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if signature != "" {
			req.Header.Set("X-Twilio-Signature", signature)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send(twilioSignature(token, target, form)))
	assert.Equal(t, http.StatusUnauthorized, send("bogus"))
	assert.Equal(t, http.StatusUnauthorized, send(""))
}

func TestTwilioStatusWebhookWithoutToken(t *testing.T) {
	router, _ := newTestHandler(t, NewDemoNotifier(nil), "")

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing MessageStatus")

	form.Set("MessageStatus", "undelivered")
	form.Set("ErrorCode", "30003")
	req = httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSendTestSMS(t *testing.T) {
	demo := NewDemoNotifier(logging.New("error"))
	router, _ := newTestHandler(t, demo, "")

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/sms/test", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"to":"0821234567","message":"ping"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp testSMSResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.MessageID, "demo_msg_"))

	rec = post(`{"to":"0821234567","kind":"reminder","name":"Thandi","service_label":"Braids"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Body, "Hi Thandi!")
	assert.Contains(t, resp.Body, "Braids")
	assert.Contains(t, resp.Body, "Glow Studio")

	assert.Equal(t, http.StatusBadRequest, post(`{"message":"ping"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"to":"082"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`nope`).Code)
	assert.Len(t, demo.Sent(), 2)
}

func TestSendTestSMSProviderError(t *testing.T) {
	fail := NotifierFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("gateway down")
	})
	router, _ := newTestHandler(t, fail, "")

	req := httptest.NewRequest(http.MethodPost, "/admin/sms/test", strings.NewReader(`{"to":"082","message":"ping"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway down")
}
