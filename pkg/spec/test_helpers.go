package spec

import "github.com/getkin/kin-openapi/openapi3"

// specWithSecurityScheme builds a minimal in-memory document carrying one
// named security scheme, for tests exercising Validate.
func specWithSecurityScheme(schemeType, httpScheme string) *openapi3.T {
	scheme := &openapi3.SecurityScheme{Type: schemeType}
	if httpScheme != "" {
		scheme.Scheme = httpScheme
	}
	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: "Test", Version: "1.0.0"},
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			SecuritySchemes: map[string]*openapi3.SecuritySchemeRef{
				"auth": {Value: scheme},
			},
		},
	}
}
