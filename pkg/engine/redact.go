package engine

import (
	"strings"

	"github.com/kioku/aperture/pkg/cachemodel"
)

const redactedPlaceholder = "[REDACTED]"

var alwaysSensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

func isSensitiveHeaderName(name string) bool {
	return alwaysSensitiveHeaders[strings.ToLower(name)]
}

// redactHeaders returns a copy of headers with Authorization, cookies, and
// every apiKey-header binding declared on cmd's security requirements
// replaced by a placeholder, for dry-run display and the request info
// recorded with a cache entry.
func redactHeaders(headers map[string]string, spec *cachemodel.CachedSpec, cmd cachemodel.CachedCommand) map[string]string {
	sensitiveNames := map[string]bool{}
	for _, name := range cmd.SecurityRequirements {
		scheme, ok := spec.SecuritySchemes[name]
		if !ok {
			continue
		}
		if scheme.Type == cachemodel.SchemeAPIKey && scheme.ParamLocation == cachemodel.LocationHeader {
			sensitiveNames[strings.ToLower(scheme.ParamName)] = true
		}
	}

	out := make(map[string]string, len(headers))
	for name, value := range headers {
		lower := strings.ToLower(name)
		if isSensitiveHeaderName(name) || sensitiveNames[lower] {
			out[name] = redactedPlaceholder
			continue
		}
		out[name] = value
	}
	return out
}
