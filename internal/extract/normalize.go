package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var nonPhoneRe = regexp.MustCompile(`[^\d+]`)

// NormalizePhone reduces a phone number to digits with an optional leading
// +. Used as a dedup identity key; display formatting is separate.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}

	normalized := nonPhoneRe.ReplaceAllString(phone, "")
	if strings.Contains(normalized, "+") {
		normalized = "+" + strings.ReplaceAll(normalized, "+", "")
	}
	return normalized
}

// PhoneKey strips the US/Canada country code so "+1 512 555 1234" and
// "(512) 555-1234" collapse to the same dedup key.
func PhoneKey(phone string) string {
	n := NormalizePhone(phone)
	if n == "" {
		return ""
	}
	digits := strings.TrimPrefix(n, "+")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return digits
}

// FormatPhoneUS formats a number for display in US convention when it has a
// US shape, otherwise returns the normalized form.
func FormatPhoneUS(phone string) string {
	n := NormalizePhone(phone)
	digits := strings.TrimPrefix(n, "+")

	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return fmt.Sprintf("+1 (%s) %s-%s", digits[1:4], digits[4:7], digits[7:])
	case strings.HasPrefix(n, "+"):
		return n
	}
	return phone
}

// Domain extracts the normalized registrable domain from a URL: scheme and
// www prefix stripped, lowercased, port removed. Returns "" for unusable
// input.
func Domain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	domain := strings.ToLower(u.Hostname())
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}
