package engine

import (
	"fmt"
	"os"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/cachemodel"
)

// injectAuth resolves every security requirement named on cmd against the
// spec's security schemes, reading each binding's secret from the
// environment and writing the resulting header.
func injectAuth(headers map[string]string, cmd cachemodel.CachedCommand, spec *cachemodel.CachedSpec) error {
	for _, name := range cmd.SecurityRequirements {
		scheme, ok := spec.SecuritySchemes[name]
		if !ok {
			return &aperrors.AuthError{Reason: fmt.Sprintf("unknown security scheme %q", name)}
		}
		if scheme.Type == cachemodel.SchemeAPIKey && scheme.ParamLocation == cachemodel.LocationQuery {
			// applied to the URL by applyAPIKeyQueryParams instead.
			continue
		}
		if scheme.Secret == nil {
			return &aperrors.AuthError{Reason: fmt.Sprintf("security scheme %q has no secret binding", name)}
		}

		value, ok := os.LookupEnv(scheme.Secret.Name)
		if !ok {
			return &aperrors.AuthError{Reason: fmt.Sprintf("environment variable %q is not set", scheme.Secret.Name)}
		}

		header, headerValue, err := authHeader(scheme, value)
		if err != nil {
			return err
		}
		headers[header] = headerValue
	}
	return nil
}

func authHeader(scheme cachemodel.CachedSecurityScheme, value string) (string, string, error) {
	switch scheme.Type {
	case cachemodel.SchemeAPIKey:
		if scheme.ParamLocation != cachemodel.LocationHeader {
			return "", "", &aperrors.AuthError{Reason: "apiKey scheme locations other than header are applied to the URL, not headers"}
		}
		return scheme.ParamName, value, nil
	case cachemodel.SchemeHTTP:
		switch scheme.HTTPScheme {
		case "bearer":
			return "Authorization", "Bearer " + value, nil
		case "basic":
			return "Authorization", "Basic " + value, nil
		case "":
			return "", "", &aperrors.AuthError{Reason: "http security scheme missing its sub-scheme name"}
		default:
			return "Authorization", schemeTitle(scheme.HTTPScheme) + " " + value, nil
		}
	default:
		return "", "", &aperrors.AuthError{Reason: fmt.Sprintf("unsupported security scheme type %q", scheme.Type)}
	}
}

// schemeTitle preserves the caller's sub-scheme token verbatim in the
// Authorization header (Token, DSN, and other proprietary names), only
// capitalising the leading letter when the source is lowercase.
func schemeTitle(scheme string) string {
	if scheme == "" {
		return scheme
	}
	r := []rune(scheme)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}

// applyAPIKeyQueryParams adds apiKey-in-query bindings to the URL's query
// values; called from buildURL so the key appears as part of the request
// target rather than a header.
func applyAPIKeyQueryParams(query map[string]string, cmd cachemodel.CachedCommand, spec *cachemodel.CachedSpec) error {
	for _, name := range cmd.SecurityRequirements {
		scheme, ok := spec.SecuritySchemes[name]
		if !ok || scheme.Type != cachemodel.SchemeAPIKey || scheme.ParamLocation != cachemodel.LocationQuery {
			continue
		}
		if scheme.Secret == nil {
			return &aperrors.AuthError{Reason: fmt.Sprintf("security scheme %q has no secret binding", name)}
		}
		value, ok := os.LookupEnv(scheme.Secret.Name)
		if !ok {
			return &aperrors.AuthError{Reason: fmt.Sprintf("environment variable %q is not set", scheme.Secret.Name)}
		}
		query[scheme.ParamName] = value
	}
	return nil
}
