package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kioku/aperture/pkg/cachemodel"
)

type memCache struct {
	store map[string][]byte
}

func newMemCache() *memCache { return &memCache{store: map[string][]byte{}} }

func (m *memCache) Lookup(api, operation, requestHash string) ([]byte, bool) {
	v, ok := m.store[api+"/"+operation+"/"+requestHash]
	return v, ok
}

func (m *memCache) Store(entry CacheEntry) error {
	m.store[entry.API+"/"+entry.Operation+"/"+entry.RequestHash] = entry.Body
	return nil
}

func baseSpec(url string) *cachemodel.CachedSpec {
	return &cachemodel.CachedSpec{
		Name:               "petstore",
		BaseURL:            url,
		CacheFormatVersion: cachemodel.CacheFormatVersion,
	}
}

func TestExecuteDryRunDoesNotHitNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	eng := New(nil)
	spec := baseSpec(server.URL)
	cmd := cachemodel.CachedCommand{OperationID: "listPets", Method: "GET", PathTemplate: "/pets"}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{DryRun: true}

	result, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.DryRun == nil {
		t.Fatal("expected dry-run result")
	}
	if called {
		t.Fatal("dry-run must not hit the network")
	}
	if result.DryRun.URL != server.URL+"/pets" {
		t.Errorf("unexpected URL: %s", result.DryRun.URL)
	}
}

func TestExecuteSuccessAndCacheHit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cache := newMemCache()
	eng := New(cache)
	spec := baseSpec(server.URL)
	cmd := cachemodel.CachedCommand{OperationID: "listPets", Method: "GET", PathTemplate: "/pets"}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{Cache: cachemodel.CacheConfig{Enabled: true, TTL: time.Minute}}

	result, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success == nil || string(result.Success.Body) != `{"ok":true}` {
		t.Fatalf("unexpected result: %+v", result)
	}

	result2, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("execute (cached): %v", err)
	}
	if result2.Cached == nil {
		t.Fatal("expected cache hit on second call")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one network hit, got %d", hits)
	}
}

func TestExecuteRetriesOn503ThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	eng := New(nil)
	spec := baseSpec(server.URL)
	cmd := cachemodel.CachedCommand{OperationID: "listPets", Method: "GET", PathTemplate: "/pets"}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{
		Retry: cachemodel.RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	}

	result, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success == nil {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts got %d", attempts)
	}
}

func TestExecuteNonRetryable4xxFailsImmediately(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	eng := New(nil)
	spec := baseSpec(server.URL)
	cmd := cachemodel.CachedCommand{OperationID: "getPet", Method: "GET", PathTemplate: "/pets/1"}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{
		Retry: cachemodel.RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	}

	_, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable 404, got %d", attempts)
	}
}

func TestExecutePostWithIdempotencyKeyRetriesOn503(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	eng := New(nil)
	spec := baseSpec(server.URL)
	cmd := cachemodel.CachedCommand{OperationID: "createPet", Method: "POST", PathTemplate: "/pets"}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{
		IdempotencyKey: "req-123",
		Retry:          cachemodel.RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	}

	result, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success == nil {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts got %d", attempts)
	}
}

func TestExecutePostWithoutIdempotencyKeyDoesNotRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	eng := New(nil)
	spec := baseSpec(server.URL)
	cmd := cachemodel.CachedCommand{OperationID: "createPet", Method: "POST", PathTemplate: "/pets"}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{
		Retry: cachemodel.RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	}

	_, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for non-idempotent POST without idempotency key, got %d", attempts)
	}
}

func TestExecuteAPIKeyInQueryIsAppliedToURLNotHeaders(t *testing.T) {
	t.Setenv("PETSTORE_API_KEY", "secret123")

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	eng := New(nil)
	spec := baseSpec(server.URL)
	spec.SecuritySchemes = map[string]cachemodel.CachedSecurityScheme{
		"apiKeyAuth": {
			Type:          cachemodel.SchemeAPIKey,
			ParamLocation: cachemodel.LocationQuery,
			ParamName:     "api_key",
			Secret:        &cachemodel.ApertureSecret{Source: "env", Name: "PETSTORE_API_KEY"},
		},
	}
	cmd := cachemodel.CachedCommand{
		OperationID:          "listPets",
		Method:               "GET",
		PathTemplate:         "/pets",
		SecurityRequirements: []string{"apiKeyAuth"},
	}
	call := &cachemodel.OperationCall{PathParams: map[string]string{}, QueryParams: map[string]string{}}
	ectx := &cachemodel.ExecutionContext{}

	result, err := eng.Execute(context.Background(), spec, cmd, call, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success == nil {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotQuery != "api_key=secret123" {
		t.Errorf("want api_key in query string, got %q", gotQuery)
	}
}

func TestResolveBaseURLPrefersOverride(t *testing.T) {
	spec := baseSpec("https://default.example.com")
	ectx := &cachemodel.ExecutionContext{BaseURLOverride: "https://override.example.com"}
	got, err := resolveBaseURL(spec, ectx, URLConfig{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "https://override.example.com" {
		t.Errorf("want override URL got %s", got)
	}
}

func TestResolveBaseURLMissingIsConfigError(t *testing.T) {
	spec := baseSpec("")
	ectx := &cachemodel.ExecutionContext{}
	if _, err := resolveBaseURL(spec, ectx, URLConfig{}); err == nil {
		t.Fatal("expected config error for missing base URL")
	}
}
