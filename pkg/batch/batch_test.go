package batch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestParseFileJSON(t *testing.T) {
	data := []byte(`{"operations":[{"id":"op1","args":["pets","list"]}]}`)
	file, err := ParseFile(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(file.Operations) != 1 || file.Operations[0].ID != "op1" {
		t.Fatalf("unexpected file: %+v", file)
	}
}

func TestParseFileYAML(t *testing.T) {
	data := []byte("operations:\n  - id: op1\n    args: [pets, list]\n")
	file, err := ParseFile(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(file.Operations) != 1 {
		t.Fatalf("unexpected file: %+v", file)
	}
}

func TestApplyDefaultsFillsMissingHeaders(t *testing.T) {
	data := []byte(`{
		"metadata": {"defaults": {"headers": {"X-Trace": "abc"}}},
		"operations": [{"id": "op1", "args": [], "headers": {"X-Custom": "1"}}]
	}`)
	file, err := ParseFile(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	op := file.Operations[0]
	if op.Headers["X-Trace"] != "abc" || op.Headers["X-Custom"] != "1" {
		t.Fatalf("unexpected headers: %+v", op.Headers)
	}
}

func TestInterpolateArgsScalarAndList(t *testing.T) {
	store := NewVariableStore()
	store.Scalars["user_id"] = "abc-123"
	store.Lists["ids"] = []string{"a", "b"}

	out, err := InterpolateArgs([]string{"--user-id", "{{user_id}}", `{"ids": {{ids}}}`}, store, "op1")
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	if out[1] != "abc-123" {
		t.Errorf("want abc-123 got %s", out[1])
	}
	if out[2] != `{"ids": ["a","b"]}` {
		t.Errorf("unexpected list interpolation: %s", out[2])
	}
}

func TestInterpolateArgsUndefinedVariableErrors(t *testing.T) {
	store := NewVariableStore()
	if _, err := InterpolateArgs([]string{"{{missing}}"}, store, "op1"); err == nil {
		t.Fatal("expected error for undefined variable")
	}
}

func TestInterpolateArgsUnclosedBraceIsLiteral(t *testing.T) {
	store := NewVariableStore()
	out, err := InterpolateArgs([]string{"prefix {{ unclosed"}, store, "op1")
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	if out[0] != "prefix {{ unclosed" {
		t.Errorf("unexpected result: %s", out[0])
	}
}

func TestExtractCapturesScalarAndAppend(t *testing.T) {
	op := Operation{
		ID:            "create-user",
		Capture:       map[string]string{"user_id": ".id"},
		CaptureAppend: map[string]string{"ids": ".id"},
	}
	store := NewVariableStore()
	if err := ExtractCaptures(op, []byte(`{"id":"abc-123"}`), store); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if store.Scalars["user_id"] != "abc-123" {
		t.Errorf("want abc-123 got %s", store.Scalars["user_id"])
	}
	if len(store.Lists["ids"]) != 1 || store.Lists["ids"][0] != "abc-123" {
		t.Errorf("unexpected list: %+v", store.Lists["ids"])
	}
}

func TestExtractCapturesNullIsError(t *testing.T) {
	op := Operation{ID: "test-op", Capture: map[string]string{"val": ".missing"}}
	store := NewVariableStore()
	if err := ExtractCaptures(op, []byte(`{"other":"data"}`), store); err == nil {
		t.Fatal("expected error for null capture")
	}
}

func TestExtractCapturesNumericScalar(t *testing.T) {
	op := Operation{ID: "get-count", Capture: map[string]string{"count": ".total"}}
	store := NewVariableStore()
	if err := ExtractCaptures(op, []byte(`{"total":42}`), store); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if store.Scalars["count"] != "42" {
		t.Errorf("want 42 got %s", store.Scalars["count"])
	}
}

func TestRunExecutesAllOperationsAndAggregates(t *testing.T) {
	file := &File{Operations: []Operation{
		{ID: "op1", Args: []string{"a"}},
		{ID: "op2", Args: []string{"b"}},
	}}

	result, err := Run(context.Background(), file, Config{MaxConcurrency: 2, ContinueOnError: true}, func(ctx context.Context, op Operation, args []string, headers map[string]string) ([]byte, error) {
		return []byte(`{"id":"` + op.ID + `"}`), nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunWaitDirectiveOrdersDependentOperation(t *testing.T) {
	var mu sync.Mutex
	var events []string

	file := &File{Operations: []Operation{
		{ID: "create", Args: []string{"a"}},
		{ID: "read", Args: []string{"b"}, Wait: "create"},
	}}

	result, err := Run(context.Background(), file, Config{MaxConcurrency: 2, ContinueOnError: true}, func(ctx context.Context, op Operation, args []string, headers map[string]string) ([]byte, error) {
		if op.ID == "create" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		events = append(events, op.ID)
		mu.Unlock()
		return []byte(`{}`), nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.SuccessCount != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(events) != 2 || events[0] != "create" || events[1] != "read" {
		t.Fatalf("expected create to finish before read started, got %v", events)
	}
}

func TestRunUnknownWaitTargetIsError(t *testing.T) {
	file := &File{Operations: []Operation{
		{ID: "read", Wait: "missing"},
	}}

	_, err := Run(context.Background(), file, Config{}, func(ctx context.Context, op Operation, args []string, headers map[string]string) ([]byte, error) {
		return []byte(`{}`), nil
	})
	if err == nil {
		t.Fatal("expected error for wait directive naming an unknown operation id")
	}
}

func TestRunDuplicateOperationIDIsError(t *testing.T) {
	file := &File{Operations: []Operation{
		{ID: "op1", Args: []string{"a"}},
		{ID: "op1", Args: []string{"b"}},
	}}

	_, err := Run(context.Background(), file, Config{}, func(ctx context.Context, op Operation, args []string, headers map[string]string) ([]byte, error) {
		return []byte(`{}`), nil
	})
	if err == nil {
		t.Fatal("expected error for duplicate operation id")
	}
}

func TestRunWaitCycleIsError(t *testing.T) {
	file := &File{Operations: []Operation{
		{ID: "a", Wait: "b"},
		{ID: "b", Wait: "a"},
	}}

	_, err := Run(context.Background(), file, Config{}, func(ctx context.Context, op Operation, args []string, headers map[string]string) ([]byte, error) {
		return []byte(`{}`), nil
	})
	if err == nil {
		t.Fatal("expected error for wait directive cycle")
	}
}
