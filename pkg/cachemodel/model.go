// Package cachemodel defines the normalised, versioned representation of an
// OpenAPI document used by every downstream component: the command-tree
// generator, the invocation translator, and the execution engine all
// operate on these types rather than on raw openapi3 structures.
package cachemodel

import "time"

// CacheFormatVersion must match exactly for a persisted CachedSpec to be
// considered valid; any mismatch invalidates the cache entry.
const CacheFormatVersion = 1

// ParamLocation is the bucket a CachedParameter is substituted into.
type ParamLocation string

const (
	LocationPath   ParamLocation = "path"
	LocationQuery  ParamLocation = "query"
	LocationHeader ParamLocation = "header"
)

// SchemeType is the outer OpenAPI security scheme kind.
type SchemeType string

const (
	SchemeHTTP   SchemeType = "http"
	SchemeAPIKey SchemeType = "apiKey"
)

// ApertureSecret binds a security scheme to a named environment variable,
// sourced from the x-aperture-secret OpenAPI extension.
type ApertureSecret struct {
	Source string // currently always "env"
	Name   string // environment variable name
}

// CachedSecurityScheme is the normalised form of an OpenAPI security scheme.
type CachedSecurityScheme struct {
	Type           SchemeType
	HTTPScheme     string // e.g. "bearer", "basic", or a custom token name
	ParamLocation  ParamLocation
	ParamName      string
	Secret         *ApertureSecret
}

// CachedParameter is one path/query/header parameter of an operation.
type CachedParameter struct {
	Name        string
	Location    ParamLocation
	Required    bool
	SchemaType  string // "string", "integer", "boolean", "array", ...
	Description string
	Default     string
	EnumValues  []string
	Example     string
}

// IsBoolean reports whether the parameter's schema type is boolean.
func (p CachedParameter) IsBoolean() bool { return p.SchemaType == "boolean" }

// CachedRequestBody is the normalised request body of an operation.
type CachedRequestBody struct {
	Required    bool
	ContentType string
	Schema      string // JSON-schema-shaped description, informational
	Example     string
}

// CachedResponse is a normalised response entry, kept for display purposes
// (--show-examples, docs) but not consulted by the engine.
type CachedResponse struct {
	StatusCode  string
	Description string
	Example     string
}

// DisplayOverride carries a CommandMapping's renames for one operation.
type DisplayOverride struct {
	Group   string
	Name    string
	Aliases []string
	Hidden  bool
}

// CachedCommand is the normalised form of one OpenAPI operation.
type CachedCommand struct {
	OperationID         string
	Method              string
	PathTemplate        string
	Parameters          []CachedParameter
	RequestBody         *CachedRequestBody
	Responses           []CachedResponse
	Tags                []string
	SecurityRequirements []string // scheme names; empty means no auth required
	Deprecated          bool
	Display             DisplayOverride
	Examples            []string
}

// ServerVariable is one templated variable in a server URL
// (e.g. {region} in https://{region}.api.example.com).
type ServerVariable struct {
	Name    string
	Default string
	Enum    []string
}

// Server is one OpenAPI server entry.
type Server struct {
	URL       string
	Variables []ServerVariable
}

// SkippedEndpoint records an operation the transformer could not represent.
type SkippedEndpoint struct {
	Method string
	Path   string
	Reason string
}

// CachedSpec is the complete normalised representation of one registered API.
type CachedSpec struct {
	Name              string
	Version           string
	BaseURL           string
	Servers           []Server
	Commands          []CachedCommand
	SecuritySchemes   map[string]CachedSecurityScheme
	SkippedEndpoints  []SkippedEndpoint
	CacheFormatVersion int
}

// OperationCall is the framework-agnostic description of one API call,
// produced by the invocation translator and consumed by the engine.
type OperationCall struct {
	OperationID   string
	PathParams    map[string]string
	QueryParams   map[string]string
	HeaderParams  map[string]string
	Body          string // raw JSON, empty if no body
	CustomHeaders map[string]string
}

// RetryConfig governs the engine's retry loop for one invocation.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	ForceRetry  bool
}

// CacheConfig governs response-cache behaviour for one invocation.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ExecutionContext is orthogonal request-time configuration: dry-run,
// idempotency, cache, retry, base-URL override, and server-var args.
type ExecutionContext struct {
	DryRun          bool
	IdempotencyKey  string
	Cache           CacheConfig
	Retry           RetryConfig
	BaseURLOverride string
	ServerVars      map[string]string
	Timeout         time.Duration
}

// GlobalCacheMetadata indexes every cached spec in one cache directory.
type GlobalCacheMetadata struct {
	CacheFormatVersion int
	Specs              map[string]SpecMetadata
}

// SpecMetadata is the per-spec fingerprint used for freshness checks.
type SpecMetadata struct {
	UpdatedAt   time.Time
	ContentHash string
	Mtime       time.Time
	FileSize    int64
}
