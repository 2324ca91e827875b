package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Reminder storage
	ReminderStore          string
	SQLitePath             string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisTLS               bool
	DynamoDBRemindersTable string

	// Reminder scheduling policy
	ReminderLead           time.Duration
	ReminderMaxAttempts    int
	ReminderRetryBaseDelay time.Duration
	ReminderRetryMaxDelay  time.Duration
	ReminderSendTimeout    time.Duration
	ReminderConcurrency    int

	// Salon details used in message bodies
	SalonName     string
	SalonPhone    string
	SalonTimezone string

	// SMS delivery
	SMSProvider           string
	SMSDefaultCountryCode string
	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioFromNumber      string
	SMSAPIURL             string
	SMSAPIKey             string
	SMSRatePerSecond      float64
	SMSRateBurst          int

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	APIRatePerSecond   float64
	APIRateBurst       int

	// Failure alerts
	AlertEmail          string
	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string
	SESConfigurationSet string

	// AWS (SQS booking events, SES, DynamoDB)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BookingQueueURL     string
	BookingWorkers      int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ReminderStore:          strings.ToLower(strings.TrimSpace(getEnv("REMINDER_STORE", "sqlite"))),
		SQLitePath:             getEnv("SQLITE_PATH", "reminders.db"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisAddr:              getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisTLS:               getEnvAsBool("REDIS_TLS", false),
		DynamoDBRemindersTable: getEnv("DYNAMODB_REMINDERS_TABLE", "reminder_jobs"),

		ReminderLead:           getEnvAsDuration("REMINDER_LEAD", 5*time.Minute),
		ReminderMaxAttempts:    getEnvAsInt("REMINDER_MAX_ATTEMPTS", 3),
		ReminderRetryBaseDelay: getEnvAsDuration("REMINDER_RETRY_BASE_DELAY", 30*time.Second),
		ReminderRetryMaxDelay:  getEnvAsDuration("REMINDER_RETRY_MAX_DELAY", 10*time.Minute),
		ReminderSendTimeout:    getEnvAsDuration("REMINDER_SEND_TIMEOUT", 10*time.Second),
		ReminderConcurrency:    getEnvAsInt("REMINDER_CONCURRENCY", 8),

		SalonName:     getEnv("SALON_NAME", "StyleBook"),
		SalonPhone:    getEnv("SALON_PHONE", "+27111234567"),
		SalonTimezone: getEnv("SALON_TIMEZONE", "Africa/Johannesburg"),

		SMSProvider:           strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		SMSDefaultCountryCode: getEnv("SMS_DEFAULT_COUNTRY_CODE", "27"),
		TwilioAccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:      getEnv("TWILIO_FROM_NUMBER", ""),
		SMSAPIURL:             getEnv("SMS_API_URL", ""),
		SMSAPIKey:             getEnv("SMS_API_KEY", ""),
		SMSRatePerSecond:      getEnvAsFloat("SMS_RATE_PER_SECOND", 1),
		SMSRateBurst:          getEnvAsInt("SMS_RATE_BURST", 5),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		APIRatePerSecond:   getEnvAsFloat("API_RATE_PER_SECOND", 10),
		APIRateBurst:       getEnvAsInt("API_RATE_BURST", 20),

		AlertEmail:          getEnv("ALERT_EMAIL", ""),
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "StyleBook"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		AWSRegion:           getEnv("AWS_REGION", "af-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BookingQueueURL:     getEnv("BOOKING_QUEUE_URL", ""),
		BookingWorkers:      getEnvAsInt("BOOKING_WORKERS", 2),
	}
}

// DemoMode reports whether no real SMS provider is configured, matching the
// booking app's "demo" behaviour where messages are only logged.
func (c *Config) DemoMode() bool {
	if c.SMSProvider == "demo" {
		return true
	}
	hasTwilio := c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
	hasAPI := c.SMSAPIURL != "" && c.SMSAPIKey != "" && c.SMSAPIKey != "demo-key"
	return !hasTwilio && !hasAPI
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
