package messaging

import (
	"regexp"
	"strings"
)

// DefaultCountryCode is used when a local number starts with a trunk "0".
const DefaultCountryCode = "27"

var phoneDigitsRe = regexp.MustCompile(`\d+`)

func sanitizePhone(value string) string {
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}

// NormalizeE164 converts the loose formats salon staff type into E.164.
//
//	"+27 82 123 4567" -> "+27821234567"
//	"0027821234567"   -> "+27821234567"
//	"082 123 4567"    -> "+27821234567"  (with countryCode "27")
//
// It returns "" when no digits are present.
func NormalizeE164(value, countryCode string) string {
	trimmed := strings.TrimSpace(value)
	digits := sanitizePhone(trimmed)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "+") {
		return "+" + digits
	}
	if strings.HasPrefix(digits, "00") {
		return "+" + strings.TrimPrefix(digits, "00")
	}
	cc := sanitizePhone(countryCode)
	if cc == "" {
		cc = DefaultCountryCode
	}
	if strings.HasPrefix(digits, "0") {
		return "+" + cc + strings.TrimLeft(digits, "0")
	}
	if strings.HasPrefix(digits, cc) && len(digits) > 10 {
		return "+" + digits
	}
	return "+" + cc + digits
}

// maskPhone keeps the last four digits for log lines.
func maskPhone(value string) string {
	digits := sanitizePhone(value)
	if len(digits) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
