package batch

import (
	"encoding/json"
	"strings"

	"github.com/kioku/aperture/pkg/aperrors"
)

// VariableStore holds scalar captures (from `capture`) and list captures
// (from `capture_append`) accumulated across a batch run.
type VariableStore struct {
	Scalars map[string]string
	Lists   map[string][]string
}

// NewVariableStore returns an empty store.
func NewVariableStore() *VariableStore {
	return &VariableStore{Scalars: map[string]string{}, Lists: map[string][]string{}}
}

// resolve looks up name, scalar first, then list (serialised as a JSON
// array literal).
func (s *VariableStore) resolve(name string) (string, bool) {
	if v, ok := s.Scalars[name]; ok {
		return v, true
	}
	if v, ok := s.Lists[name]; ok {
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
	return "", false
}

// AppendToList appends value to the named list, creating it if necessary.
func (s *VariableStore) AppendToList(name, value string) {
	s.Lists[name] = append(s.Lists[name], value)
}

// InterpolateArgs replaces every {{variable}} reference in args, returning
// an error naming the operation and the first undefined variable found.
func InterpolateArgs(args []string, store *VariableStore, operationID string) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		v, err := interpolateArg(arg, store, operationID)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func interpolateArg(arg string, store *VariableStore, operationID string) (string, error) {
	var result strings.Builder
	remaining := arg

	for {
		start := strings.Index(remaining, "{{")
		if start < 0 {
			result.WriteString(remaining)
			break
		}
		result.WriteString(remaining[:start])
		afterOpen := remaining[start+2:]

		end := strings.Index(afterOpen, "}}")
		if end < 0 {
			// Unclosed brace: treat as literal text.
			result.WriteString("{{")
			remaining = afterOpen
			continue
		}

		name := afterOpen[:end]
		value, ok := store.resolve(name)
		if !ok {
			return "", &aperrors.BatchError{
				OperationID: operationID,
				Reason:      "undefined variable " + name,
			}
		}
		result.WriteString(value)
		remaining = afterOpen[end+2:]
	}

	return result.String(), nil
}
