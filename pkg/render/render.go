// Package render turns an execution result into terminal output: pretty
// JSON, YAML, or a lipgloss table, with an optional JQ post-filter and the
// same redaction rules used when printing errors or logging requests.
// Grounded on the charmbracelet/lipgloss table usage of a typical banner
// printer, generalised from a fixed-column route table to an arbitrary
// array-of-objects or single-object result.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/kioku/aperture/pkg/engine"
)

// Format is the output format requested on the command line.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

const maxTableRows = 1000

// JQApplier runs a JQ-style filter against a JSON body, returning the
// filtered JSON text. Satisfied by batch.ApplyJQFilter in practice; kept
// as a function type here so render does not import batch.
type JQApplier func(body []byte, query string) (string, error)

// Render writes result to w in format, applying filter (if non-empty) to
// Success/Cached bodies first.
func Render(w io.Writer, result *engine.Result, format Format, filter string, jq JQApplier) error {
	switch {
	case result.DryRun != nil:
		return renderJSON(w, dryRunPayload(result.DryRun))
	case result.Empty:
		return nil
	case result.Cached != nil:
		return renderBody(w, result.Cached.Body, format, filter, jq)
	case result.Success != nil:
		return renderBody(w, result.Success.Body, format, filter, jq)
	default:
		return fmt.Errorf("render: empty result")
	}
}

func dryRunPayload(info *engine.DryRunInfo) any {
	return map[string]any{
		"operation_id": info.OperationID,
		"method":       info.Method,
		"url":          RedactURL(info.URL),
		"headers":      info.Headers,
	}
}

func renderBody(w io.Writer, body []byte, format Format, filter string, jq JQApplier) error {
	if filter != "" && jq != nil {
		filtered, err := jq(body, filter)
		if err != nil {
			return fmt.Errorf("apply --jq filter: %w", err)
		}
		body = []byte(filtered)
	}

	switch format {
	case FormatYAML:
		return renderYAML(w, body)
	case FormatTable:
		return renderTable(w, body)
	default:
		return renderJSONBytes(w, body)
	}
}

func renderJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderJSONBytes(w io.Writer, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		// Not parseable JSON: pass through verbatim.
		_, err := w.Write(body)
		return err
	}
	return renderJSON(w, v)
}

func renderYAML(w io.Writer, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err := w.Write(body)
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func renderTable(w io.Writer, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err := w.Write(body)
		return err
	}

	switch val := v.(type) {
	case []any:
		return renderRowsTable(w, val)
	case map[string]any:
		return renderKVTable(w, val)
	default:
		return renderJSON(w, v)
	}
}

func renderRowsTable(w io.Writer, rows []any) error {
	if len(rows) > maxTableRows {
		_, err := fmt.Fprintf(w, "result has %d rows, exceeding the %d-row table display cap; use --format json\n", len(rows), maxTableRows)
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(no results)")
		return err
	}

	columns := columnOrder(rows)
	rendered := make([][]string, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			rendered = append(rendered, []string{fmt.Sprintf("%v", row)})
			continue
		}
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cellText(obj[col])
		}
		rendered = append(rendered, cells)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			style := lipgloss.NewStyle().Align(lipgloss.Left).Padding(0, 1)
			if row == 0 {
				style = style.Bold(true)
			}
			return style
		}).
		Headers(columns...).
		Rows(rendered...)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderKVTable(w io.Writer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, cellText(obj[k])}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Field", "Value").
		Rows(rows...)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func columnOrder(rows []any) []string {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	return columns
}

func cellText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
