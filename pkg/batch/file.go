// Package batch implements the batch orchestrator: parsing a batch file of
// ordered operations, running them under bounded concurrency and an
// optional rate limit, interpolating {{var}} references between them, and
// capturing values out of each response via JQ expressions. Grounded on
// the BatchFile/BatchOperation/BatchProcessor shape of a Rust batch runner
// being ported to Go, using golang.org/x/sync/semaphore and
// golang.org/x/time/rate in place of tokio::sync::Semaphore and governor,
// and github.com/itchyny/gojq in place of the JQ crate.
package batch

import (
	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/spec"
)

// Operation is one entry in a batch file.
type Operation struct {
	ID            string            `json:"id" yaml:"id"`
	Args          []string          `json:"args" yaml:"args"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	UseCache      *bool             `json:"use_cache,omitempty" yaml:"use_cache,omitempty"`
	Capture       map[string]string `json:"capture,omitempty" yaml:"capture,omitempty"`
	CaptureAppend map[string]string `json:"capture_append,omitempty" yaml:"capture_append,omitempty"`
	Wait          string            `json:"wait,omitempty" yaml:"wait,omitempty"`
}

// Defaults holds batch-wide fallbacks applied when an operation omits them.
type Defaults struct {
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	UseCache *bool              `json:"use_cache,omitempty" yaml:"use_cache,omitempty"`
}

// Metadata is the optional descriptive header of a batch file.
type Metadata struct {
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Defaults    *Defaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// File is the top-level batch document.
type File struct {
	Metadata   *Metadata   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Operations []Operation `json:"operations" yaml:"operations"`
}

// ParseFile auto-detects JSON vs YAML and parses data into a File.
func ParseFile(data []byte) (*File, error) {
	detector := spec.NewContentDetector()
	var file File
	if err := detector.UnmarshalWithFallback(data, &file); err != nil {
		return nil, &aperrors.BatchError{Reason: "parse batch file", Err: err}
	}
	applyDefaults(&file)
	return &file, nil
}

func applyDefaults(file *File) {
	if file.Metadata == nil || file.Metadata.Defaults == nil {
		return
	}
	defaults := file.Metadata.Defaults
	for i := range file.Operations {
		op := &file.Operations[i]
		if op.UseCache == nil {
			op.UseCache = defaults.UseCache
		}
		if len(defaults.Headers) == 0 {
			continue
		}
		if op.Headers == nil {
			op.Headers = map[string]string{}
		}
		for k, v := range defaults.Headers {
			if _, exists := op.Headers[k]; !exists {
				op.Headers[k] = v
			}
		}
	}
}
