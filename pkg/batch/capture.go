package batch

import (
	"encoding/json"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/kioku/aperture/pkg/aperrors"
)

// ExtractCaptures evaluates op's capture and capture_append JQ expressions
// against responseBody and writes the results into store.
func ExtractCaptures(op Operation, responseBody []byte, store *VariableStore) error {
	opID := op.ID
	if opID == "" {
		opID = "<unnamed>"
	}

	for name, query := range op.Capture {
		value, err := runJQCapture(opID, name, query, responseBody)
		if err != nil {
			return err
		}
		store.Scalars[name] = value
	}

	for name, query := range op.CaptureAppend {
		value, err := runJQCapture(opID, name, query, responseBody)
		if err != nil {
			return err
		}
		store.AppendToList(name, value)
	}

	return nil
}

// runJQCapture runs one JQ query and returns the extracted scalar,
// stripping surrounding JSON string quotes so interpolation produces a
// clean value (e.g. abc-123, not "abc-123").
func runJQCapture(operationID, varName, jqQuery string, responseBody []byte) (string, error) {
	raw, err := applyJQFilter(responseBody, jqQuery)
	if err != nil {
		return "", &aperrors.BatchError{OperationID: operationID, Reason: "JQ query " + jqQuery + " on " + varName + " failed", Err: err}
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "null" || trimmed == "" {
		return "", &aperrors.BatchError{
			OperationID: operationID,
			Reason:      "JQ query '" + jqQuery + "' returned null or empty",
		}
	}

	return stripJSONQuotes(trimmed), nil
}

// stripJSONQuotes decodes a JSON string literal so escape sequences are
// interpreted; non-string JSON values pass through as their textual form.
func stripJSONQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var decoded string
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded
		}
		return s[1 : len(s)-1]
	}
	return s
}

// ApplyJQFilter runs a JQ query against a JSON body and returns the first
// result's JSON text representation. Exported so the renderer's --jq
// post-filter can share this package's JQ evaluation instead of
// duplicating it.
func ApplyJQFilter(body []byte, query string) (string, error) {
	return applyJQFilter(body, query)
}

// applyJQFilter runs query against the JSON document in body and returns
// the first result's JSON text representation. Used by both capture
// extraction and the renderer's --jq post-filter.
func applyJQFilter(body []byte, query string) (string, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return "", err
	}

	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return "", err
	}

	iter := q.Run(input)
	v, ok := iter.Next()
	if !ok {
		return "null", nil
	}
	if err, isErr := v.(error); isErr {
		return "", err
	}

	out, err := json.Marshal(v)
	return string(out), err
}
