// Package engine executes an OperationCall against the network (or, in
// dry-run mode, just describes what would be sent). It never prints;
// callers render its Result. Grounded on the URL/header/body construction
// style of a typical request builder, generalised from parameter-map based
// substitution to the OperationCall/CachedCommand data model and extended
// with auth injection, caching, and retries per the execution contract.
package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/cachemodel"
)

// Version is embedded in the default User-Agent header.
var Version = "dev"

// Cache is the subset of the response cache's behaviour the engine needs;
// satisfied by pkg/respcache.Store.
type Cache interface {
	Lookup(api, operation, requestHash string) ([]byte, bool)
	Store(entry CacheEntry) error
}

// CacheEntry is everything the response cache records about one cached
// response.
type CacheEntry struct {
	API             string
	Operation       string
	RequestHash     string
	Body            []byte
	Status          int
	TTL             time.Duration
	RedactedRequest map[string]string
}

// URLConfig supplies the per-API base URL overrides that live in global
// configuration, distinct from the one-off ExecutionContext.BaseURLOverride.
type URLConfig struct {
	// EnvURLs maps an APERTURE_ENV value to a base URL override.
	EnvURLs map[string]string
	// BaseURLOverride is the persisted per-API base-url override.
	BaseURLOverride string
}

// Engine executes operation calls.
type Engine struct {
	client *http.Client
	cache  Cache
}

// New builds an Engine. cache may be nil to disable response caching
// entirely regardless of ExecutionContext.Cache.Enabled.
func New(cache Cache) *Engine {
	return &Engine{client: &http.Client{}, cache: cache}
}

// Result is the sum type returned by Execute: one of DryRun, Cached,
// Success, or Empty.
type Result struct {
	DryRun  *DryRunInfo
	Cached  *CachedBody
	Success *SuccessResponse
	Empty   bool
}

// DryRunInfo describes the request that would have been sent.
type DryRunInfo struct {
	OperationID string
	Method      string
	URL         string
	Headers     map[string]string
}

// CachedBody is a cache hit's stored body.
type CachedBody struct {
	Body []byte
}

// SuccessResponse is a 2xx response.
type SuccessResponse struct {
	Body    []byte
	Status  int
	Headers map[string]string
}

// Execute runs call against spec's resolved base URL under ectx, following
// the nine-step execution contract: base-URL resolution, URL construction,
// header assembly, authentication, dry-run short-circuit, cache lookup,
// request with retries, response classification, and cache population.
func (e *Engine) Execute(ctx context.Context, spec *cachemodel.CachedSpec, cmd cachemodel.CachedCommand, call *cachemodel.OperationCall, ectx *cachemodel.ExecutionContext, urlCfg URLConfig) (*Result, error) {
	baseURL, err := resolveBaseURL(spec, ectx, urlCfg)
	if err != nil {
		return nil, err
	}

	reqURL, err := buildURL(baseURL, cmd, call, spec)
	if err != nil {
		return nil, err
	}

	headers, err := assembleHeaders(cmd, call, ectx, spec)
	if err != nil {
		return nil, err
	}

	if ectx.DryRun {
		return &Result{DryRun: &DryRunInfo{
			OperationID: cmd.OperationID,
			Method:      cmd.Method,
			URL:         reqURL,
			Headers:     redactHeaders(headers, spec, cmd),
		}}, nil
	}

	cacheable := ectx.Cache.Enabled && e.cache != nil && isCacheEligible(cmd.Method)
	var fingerprint string
	if cacheable {
		fingerprint = requestFingerprint(cmd.Method, reqURL, call.Body, headers)
		if body, hit := e.cache.Lookup(spec.Name, cmd.Display.Name, fingerprint); hit {
			return &Result{Cached: &CachedBody{Body: body}}, nil
		}
	}

	client := e.client
	if ectx.Timeout > 0 {
		clientCopy := *e.client
		clientCopy.Timeout = ectx.Timeout
		client = &clientCopy
	}

	resp, err := doWithRetry(ctx, client, cmd.Method, reqURL, call.Body, headers, ectx.Retry, ectx.IdempotencyKey != "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &aperrors.NetworkError{Reason: "read response body", Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, aperrors.NewHttpStatusError(resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		return &Result{Empty: true}, nil
	}

	result := &Result{Success: &SuccessResponse{
		Body:    body,
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
	}}

	if cacheable {
		entry := CacheEntry{
			API:             spec.Name,
			Operation:       cmd.Display.Name,
			RequestHash:     fingerprint,
			Body:            body,
			Status:          resp.StatusCode,
			TTL:             ectx.Cache.TTL,
			RedactedRequest: redactHeaders(headers, spec, cmd),
		}
		if err := e.cache.Store(entry); err != nil {
			return nil, &aperrors.CacheError{Reason: "store response cache entry", Err: err}
		}
	}

	return result, nil
}

func resolveBaseURL(spec *cachemodel.CachedSpec, ectx *cachemodel.ExecutionContext, urlCfg URLConfig) (string, error) {
	candidate := ectx.BaseURLOverride
	if candidate == "" {
		if env := os.Getenv("APERTURE_ENV"); env != "" {
			if u, ok := urlCfg.EnvURLs[env]; ok {
				candidate = u
			}
		}
	}
	if candidate == "" {
		candidate = urlCfg.BaseURLOverride
	}
	if candidate == "" {
		candidate = spec.BaseURL
	}
	if candidate == "" {
		return "", &aperrors.ConfigError{Reason: "no base URL configured; run config set-url"}
	}

	resolved, err := substituteServerVars(candidate, ectx.ServerVars, serverVariablesFor(spec, candidate))
	if err != nil {
		return "", err
	}
	if strings.Contains(resolved, "{") {
		return "", &aperrors.ConfigError{Reason: fmt.Sprintf(
			"base URL %q still contains unfilled template variables; pass --server-var or run config set-url", resolved)}
	}
	return resolved, nil
}

func serverVariablesFor(spec *cachemodel.CachedSpec, url string) []cachemodel.ServerVariable {
	for _, s := range spec.Servers {
		if s.URL == url {
			return s.Variables
		}
	}
	return nil
}

func substituteServerVars(tmpl string, overrides map[string]string, defaults []cachemodel.ServerVariable) (string, error) {
	defaultByName := map[string]string{}
	for _, v := range defaults {
		defaultByName[v.Name] = v.Default
	}

	result := tmpl
	for name, value := range overrides {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	for name, value := range defaultByName {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	return result, nil
}

func buildURL(baseURL string, cmd cachemodel.CachedCommand, call *cachemodel.OperationCall, spec *cachemodel.CachedSpec) (string, error) {
	path := cmd.PathTemplate

	for name, value := range call.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", value)
	}
	for _, p := range cmd.Parameters {
		if p.Location != cachemodel.LocationPath {
			continue
		}
		if _, ok := call.PathParams[p.Name]; ok {
			continue
		}
		if p.Required {
			return "", &aperrors.InvocationError{Reason: fmt.Sprintf("missing required path parameter %q", p.Name)}
		}
	}
	if strings.Contains(path, "{") {
		return "", &aperrors.InvocationError{Reason: fmt.Sprintf("unresolved path template in %q", path)}
	}

	values := url.Values{}
	for name, value := range call.QueryParams {
		values.Set(name, value)
	}
	apiKeyQuery := map[string]string{}
	if err := applyAPIKeyQueryParams(apiKeyQuery, cmd, spec); err != nil {
		return "", err
	}
	for name, value := range apiKeyQuery {
		values.Set(name, value)
	}

	full := strings.TrimRight(baseURL, "/") + path
	if len(values) > 0 {
		full += "?" + values.Encode()
	}
	return full, nil
}

func assembleHeaders(cmd cachemodel.CachedCommand, call *cachemodel.OperationCall, ectx *cachemodel.ExecutionContext, spec *cachemodel.CachedSpec) (map[string]string, error) {
	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": "aperture/" + Version,
	}

	for name, value := range call.HeaderParams {
		headers[name] = value
	}

	if err := injectAuth(headers, cmd, spec); err != nil {
		return nil, err
	}

	for name, value := range call.CustomHeaders {
		headers[name] = expandEnvTemplate(value)
	}

	if ectx.IdempotencyKey != "" {
		headers["Idempotency-Key"] = ectx.IdempotencyKey
	}

	if call.Body != "" {
		headers["Content-Type"] = "application/json"
	}

	return headers, nil
}

func expandEnvTemplate(value string) string {
	return os.Expand(value, func(name string) string {
		return os.Getenv(name)
	})
}

func isCacheEligible(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func requestFingerprint(method, url, body string, headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		if isSensitiveHeaderName(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", method, url)
	bodyHash := sha256.Sum256([]byte(body))
	h.Write(bodyHash[:])
	for _, name := range names {
		fmt.Fprintf(h, "\n%s=%s", name, headers[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func doWithRetry(ctx context.Context, client *http.Client, method, url, body string, headers map[string]string, retry cachemodel.RetryConfig, hasIdempotencyKey bool) (*http.Response, error) {
	maxAttempts := retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delays := newBackoff(retry.BaseDelay, retry.MaxDelay)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var bodyReader io.Reader
		if body != "" {
			bodyReader = bytes.NewReader([]byte(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, &aperrors.InvocationError{Reason: "build HTTP request", Err: err}
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}

		if err != nil {
			lastErr = &aperrors.NetworkError{Reason: "request failed", Err: err}
		} else {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			statusErr := aperrors.NewHttpStatusError(resp.StatusCode, string(respBody))
			if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
				statusErr.RetryAfter = d
			}
			lastErr = statusErr
		}

		if attempt == maxAttempts {
			break
		}
		if !retryable(lastErr, method, retry, hasIdempotencyKey) {
			break
		}

		delay := delays.next()
		if ra, ok := retryAfterDelay(lastErr); ok {
			delay = ra
			if delay > retry.MaxDelay && retry.MaxDelay > 0 {
				delay = retry.MaxDelay
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}
