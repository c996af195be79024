// Package invocation translates a parsed cobra command's flags into an
// OperationCall and ExecutionContext, the inputs consumed by the execution
// engine. Grounded on the flag-reading style of a typical cobra CLI
// handler: values are pulled directly off the parsed *cobra.Command rather
// than re-parsed from os.Args.
package invocation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/internal/durationx"
	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/cachemodel"
	"github.com/kioku/aperture/pkg/command"
)

// FindOperation resolves an operation by group and name/alias fallback,
// used when a caller bypasses the generated command tree (e.g. batch-file
// operations).
func FindOperation(spec *cachemodel.CachedSpec, group, name string) (*cachemodel.CachedCommand, bool) {
	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		if group != "" && cmd.Display.Group != group {
			continue
		}
		if cmd.Display.Name == name {
			return cmd, true
		}
		for _, alias := range cmd.Display.Aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return nil, false
}

// BuildOperationCall reads every declared parameter and the request body
// off cmd's parsed flags, validating required-ness and pre-validating JSON
// bodies (parsed then discarded). In legacy mode, path parameters are read
// positionally from cmd's non-flag arguments instead of from flags.
func BuildOperationCall(op cachemodel.CachedCommand, cmd *cobra.Command, legacy bool) (*cachemodel.OperationCall, error) {
	call := &cachemodel.OperationCall{
		OperationID:   op.OperationID,
		PathParams:    map[string]string{},
		QueryParams:   map[string]string{},
		HeaderParams:  map[string]string{},
		CustomHeaders: map[string]string{},
	}

	if legacy {
		if err := applyLegacyPathParams(call, op, cmd); err != nil {
			return nil, err
		}
	}

	for _, p := range op.Parameters {
		if legacy && p.Location == cachemodel.LocationPath {
			continue
		}

		value, present, err := readParameterFlag(cmd, p)
		if err != nil {
			return nil, err
		}
		if !present {
			if p.Required && p.Location != cachemodel.LocationPath {
				return nil, &aperrors.InvocationError{Reason: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			if p.IsBoolean() && p.Location == cachemodel.LocationPath {
				value = "false"
			} else {
				continue
			}
		}

		switch p.Location {
		case cachemodel.LocationPath:
			call.PathParams[p.Name] = value
		case cachemodel.LocationQuery:
			call.QueryParams[p.Name] = value
		case cachemodel.LocationHeader:
			call.HeaderParams[p.Name] = value
		}
	}

	if op.RequestBody != nil {
		body, err := cmd.Flags().GetString("body")
		if err != nil {
			return nil, &aperrors.InvocationError{Reason: "read --body flag", Err: err}
		}
		if body == "" && op.RequestBody.Required {
			return nil, &aperrors.InvocationError{Reason: "missing required --body"}
		}
		if body != "" {
			var discard any
			if err := json.Unmarshal([]byte(body), &discard); err != nil {
				return nil, &aperrors.InvocationError{
					Reason:      "request body is not valid JSON",
					Suggestions: []string{"quote the --body value so your shell passes a single JSON argument"},
					Err:         err,
				}
			}
		}
		call.Body = body
	}

	headers, err := cmd.Flags().GetStringArray("header")
	if err == nil {
		parsed, perr := ParseHeaders(headers)
		if perr != nil {
			return nil, perr
		}
		call.CustomHeaders = parsed
	}

	return call, nil
}

// applyLegacyPathParams fills call.PathParams from cmd's positional
// arguments, matching them to path parameters in declared order. Unlike
// the flag-based mode, a path parameter's Boolean-ness has no special
// handling here: its value is whatever string the caller typed.
func applyLegacyPathParams(call *cachemodel.OperationCall, op cachemodel.CachedCommand, cmd *cobra.Command) error {
	args := cmd.Flags().Args()
	i := 0
	for _, p := range op.Parameters {
		if p.Location != cachemodel.LocationPath {
			continue
		}
		if i >= len(args) {
			if p.Required {
				return &aperrors.InvocationError{Reason: fmt.Sprintf("missing positional path argument %q", p.Name)}
			}
			continue
		}
		call.PathParams[p.Name] = args[i]
		i++
	}
	return nil
}

func readParameterFlag(cmd *cobra.Command, p cachemodel.CachedParameter) (string, bool, error) {
	name := command.FlagName(p.Name)
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return "", false, nil
	}

	if p.IsBoolean() {
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return "", false, &aperrors.InvocationError{Reason: fmt.Sprintf("read --%s flag", name), Err: err}
		}
		if v {
			return "true", true, nil
		}
		return "", flag.Changed, nil
	}

	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", false, &aperrors.InvocationError{Reason: fmt.Sprintf("read --%s flag", name), Err: err}
	}
	return v, flag.Changed || v != "", nil
}

// ParseHeaders parses repeated "Name: Value" arguments.
func ParseHeaders(values []string) (map[string]string, error) {
	out := map[string]string{}
	for _, v := range values {
		idx := strings.Index(v, ":")
		if idx < 0 {
			return nil, &aperrors.InvocationError{Reason: fmt.Sprintf("invalid --header value %q, want \"Name: Value\"", v)}
		}
		name := strings.TrimSpace(v[:idx])
		value := strings.TrimSpace(v[idx+1:])
		out[name] = value
	}
	return out, nil
}

// ParseServerVars parses repeated "KEY=VALUE" arguments.
func ParseServerVars(values []string) (map[string]string, error) {
	out := map[string]string{}
	for _, v := range values {
		idx := strings.Index(v, "=")
		if idx < 0 {
			return nil, &aperrors.InvocationError{Reason: fmt.Sprintf("invalid --server-var value %q, want KEY=VALUE", v)}
		}
		out[v[:idx]] = v[idx+1:]
	}
	return out, nil
}

// RetryDefaults supplies the GlobalConfig fallback values used when the
// caller leaves retry flags unset.
type RetryDefaults struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// BuildExecutionContext reads the global flags shared by every operation
// command, falling back to retryDefaults and the supplied cache/timeout
// defaults when the corresponding flag was not set.
func BuildExecutionContext(cmd *cobra.Command, retryDefaults RetryDefaults, cacheTTLDefault, timeoutDefault time.Duration) (*cachemodel.ExecutionContext, error) {
	ctx := &cachemodel.ExecutionContext{}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx.DryRun = dryRun

	ctx.IdempotencyKey, _ = cmd.Flags().GetString("idempotency-key")
	ctx.BaseURLOverride, _ = cmd.Flags().GetString("base-url")

	timeoutStr, _ := cmd.Flags().GetString("timeout")
	timeout, err := optionalDuration(timeoutStr, timeoutDefault)
	if err != nil {
		return nil, err
	}
	ctx.Timeout = timeout

	noCache, _ := cmd.Flags().GetBool("no-cache")
	cacheTTLStr, _ := cmd.Flags().GetString("cache-ttl")
	cacheTTL, err := optionalDuration(cacheTTLStr, cacheTTLDefault)
	if err != nil {
		return nil, err
	}
	ctx.Cache = cachemodel.CacheConfig{Enabled: !noCache, TTL: cacheTTL}

	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	if !cmd.Flags().Changed("max-attempts") {
		maxAttempts = retryDefaults.MaxAttempts
	}
	baseDelayStr, _ := cmd.Flags().GetString("retry-base-delay")
	baseDelay, err := optionalDuration(baseDelayStr, retryDefaults.BaseDelay)
	if err != nil {
		return nil, err
	}
	maxDelayStr, _ := cmd.Flags().GetString("retry-max-delay")
	maxDelay, err := optionalDuration(maxDelayStr, retryDefaults.MaxDelay)
	if err != nil {
		return nil, err
	}
	forceRetry, _ := cmd.Flags().GetBool("force-retry")

	ctx.Retry = cachemodel.RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		ForceRetry:  forceRetry,
	}

	serverVars, _ := cmd.Flags().GetStringArray("server-var")
	vars, err := ParseServerVars(serverVars)
	if err != nil {
		return nil, err
	}
	ctx.ServerVars = vars

	return ctx, nil
}

func optionalDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := durationx.Parse(s)
	if err != nil {
		return 0, &aperrors.InvocationError{Reason: fmt.Sprintf("invalid duration %q", s), Err: err}
	}
	return d, nil
}
