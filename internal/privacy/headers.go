package privacy

import "strings"

// DefaultSensitiveHeaders are redacted before request headers reach a log.
var DefaultSensitiveHeaders = []string{"authorization", "cookie", "x-api-key", "x-auth-token", "proxy-authorization"}

// ScrubHeaders returns a copy of headers with sensitive values replaced by
// [REDACTED]. A header is sensitive when its name contains one of the
// sensitive fragments, case-insensitively.
func ScrubHeaders(headers map[string][]string, sensitive []string) map[string][]string {
	if len(sensitive) == 0 {
		sensitive = DefaultSensitiveHeaders
	}

	processed := make(map[string][]string, len(headers))
	for key, values := range headers {
		if isSensitiveHeader(key, sensitive) {
			processed[key] = []string{"[REDACTED]"}
			continue
		}
		processed[key] = values
	}
	return processed
}

func isSensitiveHeader(header string, sensitive []string) bool {
	headerLower := strings.ToLower(header)
	for _, s := range sensitive {
		if strings.Contains(headerLower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
