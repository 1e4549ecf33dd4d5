package logger

import "regexp"

var (
	webhookPattern = regexp.MustCompile(`(/api/webhooks/\d+/)[A-Za-z0-9_\-]+`)
	secretParam    = regexp.MustCompile(`(?i)([?&](?:token|key|api_key|access_token)=)[^&#\s]+`)
)

// MaskURL redacts webhook tokens and secret query parameters so the value can
// be logged.
func MaskURL(raw string) string {
	masked := webhookPattern.ReplaceAllString(raw, "${1}***")
	return secretParam.ReplaceAllString(masked, "${1}***")
}
