package render

import (
	"net/url"
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

var sensitiveHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^authorization$`),
	regexp.MustCompile(`(?i)^proxy-authorization$`),
	regexp.MustCompile(`(?i).*-api-key$`),
	regexp.MustCompile(`(?i).*-token$`),
	regexp.MustCompile(`(?i)^cookie$`),
	regexp.MustCompile(`(?i)^set-cookie$`),
	regexp.MustCompile(`(?i).*csrf.*`),
}

var sensitiveQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)key`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)signature`),
}

// IsSensitiveHeader reports whether name matches one of the sensitive
// header patterns shared between error printing and response rendering.
func IsSensitiveHeader(name string) bool {
	for _, p := range sensitiveHeaderPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// RedactHeaders returns a copy of headers with sensitive values replaced.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if IsSensitiveHeader(name) {
			out[name] = redactedValue
			continue
		}
		out[name] = value
	}
	return out
}

// RedactURL replaces sensitive query parameter values in rawURL.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	values := u.Query()
	changed := false
	for key := range values {
		if isSensitiveQueryParam(key) {
			values.Set(key, redactedValue)
			changed = true
		}
	}
	if changed {
		u.RawQuery = values.Encode()
	}
	return u.String()
}

func isSensitiveQueryParam(name string) bool {
	for _, p := range sensitiveQueryPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// RedactLine applies query-parameter redaction to any line of text that
// embeds a URL, used by log output that prints request lines verbatim.
func RedactLine(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if strings.Contains(f, "?") && (strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://")) {
			fields[i] = RedactURL(f)
		}
	}
	return strings.Join(fields, " ")
}
