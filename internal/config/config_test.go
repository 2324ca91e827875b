package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "REMINDER_STORE", "REMINDER_LEAD",
		"REMINDER_MAX_ATTEMPTS", "SMS_PROVIDER", "TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN", "SMS_API_URL", "SMS_API_KEY", "SALON_TIMEZONE",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ReminderStore != "sqlite" {
		t.Fatalf("expected sqlite store by default, got %s", cfg.ReminderStore)
	}
	if cfg.ReminderLead != 5*time.Minute {
		t.Fatalf("expected 5m lead, got %s", cfg.ReminderLead)
	}
	if cfg.ReminderMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.ReminderMaxAttempts)
	}
	if cfg.SalonTimezone != "Africa/Johannesburg" {
		t.Fatalf("expected johannesburg timezone, got %s", cfg.SalonTimezone)
	}
	if !cfg.DemoMode() {
		t.Fatalf("expected demo mode without sms credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("REMINDER_STORE", " Postgres ")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("REMINDER_LEAD", "10m")
	t.Setenv("REMINDER_MAX_ATTEMPTS", "5")
	t.Setenv("REMINDER_SEND_TIMEOUT", "3s")
	t.Setenv("SMS_RATE_PER_SECOND", "2.5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("SMS_PROVIDER", "")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.ReminderStore != "postgres" {
		t.Fatalf("expected normalized store name, got %q", cfg.ReminderStore)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.ReminderLead != 10*time.Minute {
		t.Fatalf("expected lead override, got %s", cfg.ReminderLead)
	}
	if cfg.ReminderMaxAttempts != 5 {
		t.Fatalf("expected attempts override, got %d", cfg.ReminderMaxAttempts)
	}
	if cfg.ReminderSendTimeout != 3*time.Second {
		t.Fatalf("expected send timeout override, got %s", cfg.ReminderSendTimeout)
	}
	if cfg.SMSRatePerSecond != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.SMSRatePerSecond)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.DemoMode() {
		t.Fatalf("expected live mode with twilio credentials")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("REMINDER_LEAD", "soon")
	t.Setenv("REMINDER_CONCURRENCY", "many")
	cfg := Load()
	if cfg.ReminderLead != 5*time.Minute {
		t.Fatalf("expected default lead for malformed value, got %s", cfg.ReminderLead)
	}
	if cfg.ReminderConcurrency != 8 {
		t.Fatalf("expected default concurrency, got %d", cfg.ReminderConcurrency)
	}
}

func TestDemoModeWithDemoKey(t *testing.T) {
	cfg := &Config{SMSAPIURL: "https://api.demo-sms.com/send", SMSAPIKey: "demo-key"}
	if !cfg.DemoMode() {
		t.Fatalf("demo-key should keep demo mode on")
	}
	cfg.SMSAPIKey = "live"
	if cfg.DemoMode() {
		t.Fatalf("expected live mode with a real api key")
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.test, ,https://b.test ")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://a.test" || cfg.CORSAllowedOrigins[1] != "https://b.test" {
		t.Fatalf("unexpected origins %q", cfg.CORSAllowedOrigins)
	}

	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	if origins := Load().CORSAllowedOrigins; len(origins) != 0 {
		t.Fatalf("expected no origins, got %q", origins)
	}
}
