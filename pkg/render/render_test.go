package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kioku/aperture/pkg/engine"
)

func TestRenderJSONPrettyPrints(t *testing.T) {
	var buf bytes.Buffer
	result := &engine.Result{Success: &engine.SuccessResponse{Body: []byte(`{"a":1}`)}}
	if err := Render(&buf, result, FormatJSON, "", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "\"a\": 1") {
		t.Errorf("expected pretty-printed JSON, got %s", buf.String())
	}
}

func TestRenderYAMLConvertsFromJSON(t *testing.T) {
	var buf bytes.Buffer
	result := &engine.Result{Success: &engine.SuccessResponse{Body: []byte(`{"a":1}`)}}
	if err := Render(&buf, result, FormatYAML, "", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "a: 1") {
		t.Errorf("expected YAML output, got %s", buf.String())
	}
}

func TestRenderEmptyPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	result := &engine.Result{Empty: true}
	if err := Render(&buf, result, FormatJSON, "", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestRenderTableArrayOfObjects(t *testing.T) {
	var buf bytes.Buffer
	result := &engine.Result{Success: &engine.SuccessResponse{Body: []byte(`[{"id":"1","name":"a"},{"id":"2","name":"b"}]`)}}
	if err := Render(&buf, result, FormatTable, "", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "id") || !strings.Contains(out, "name") {
		t.Errorf("expected table headers, got %s", out)
	}
}

func TestRenderTableDegradesOverRowCap(t *testing.T) {
	rows := make([]map[string]string, maxTableRows+1)
	for i := range rows {
		rows[i] = map[string]string{"id": "x"}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var buf bytes.Buffer
	result := &engine.Result{Success: &engine.SuccessResponse{Body: data}}
	if err := Render(&buf, result, FormatTable, "", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "exceeding") {
		t.Errorf("expected degradation message, got %s", buf.String())
	}
}

func TestRenderAppliesJQFilter(t *testing.T) {
	var buf bytes.Buffer
	result := &engine.Result{Success: &engine.SuccessResponse{Body: []byte(`{"a":{"b":42}}`)}}
	jq := func(body []byte, query string) (string, error) { return `42`, nil }
	if err := Render(&buf, result, FormatJSON, ".a.b", jq); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("want 42 got %s", buf.String())
	}
}

func TestRenderDryRunRedactsSensitiveQueryParam(t *testing.T) {
	var buf bytes.Buffer
	result := &engine.Result{DryRun: &engine.DryRunInfo{
		OperationID: "listPets",
		Method:      "GET",
		URL:         "https://api.example.com/pets?api_key=shh",
		Headers:     map[string]string{"Accept": "application/json"},
	}}
	if err := Render(&buf, result, FormatJSON, "", nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(buf.String(), "shh") {
		t.Errorf("expected api_key to be redacted, got %s", buf.String())
	}
}

func TestRedactHeaders(t *testing.T) {
	out := RedactHeaders(map[string]string{"Authorization": "Bearer x", "Accept": "application/json"})
	if out["Authorization"] != "[REDACTED]" {
		t.Errorf("expected Authorization redacted, got %s", out["Authorization"])
	}
	if out["Accept"] != "application/json" {
		t.Errorf("expected Accept preserved, got %s", out["Accept"])
	}
}
