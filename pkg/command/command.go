// Package command builds a cobra command tree from a cachemodel.CachedSpec:
// <root> -> <group> -> <operation>, with one flag per declared parameter.
// Grounded on the root/subcommand wiring style of a typical cobra-based CLI
// entrypoint (persistent global flags on the root, RunE closures on leaves).
package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/cachemodel"
)

// Dispatch is invoked once a leaf operation command's flags have been
// parsed. It receives the resolved group/operation and the cobra command
// carrying the parsed flag values, and is responsible for translating them
// into an OperationCall and executing it; command itself never talks to the
// network or touches ExecutionContext fields.
type Dispatch func(ctx context.Context, spec *cachemodel.CachedSpec, op cachemodel.CachedCommand, cmd *cobra.Command) error

// Options controls tree generation.
type Options struct {
	// Legacy emits path parameters as positional arguments instead of
	// flags, per the legacy positional mode switch.
	Legacy bool
}

// Build constructs the full command tree rooted at root.Use, grouping
// operations under their Display.Group and naming leaves by Display.Name
// (skipping hidden operations).
func Build(root *cobra.Command, spec *cachemodel.CachedSpec, opts Options, dispatch Dispatch) {
	root.PersistentFlags().String("format", "json", "output format: json, yaml, table")
	root.PersistentFlags().String("jq", "", "jq-style filter applied to the response body")
	root.PersistentFlags().StringArray("server-var", nil, "server variable override KEY=VALUE (repeatable)")
	root.PersistentFlags().Bool("dry-run", false, "print the request that would be sent instead of executing it")
	root.PersistentFlags().String("idempotency-key", "", "value sent as the Idempotency-Key header")
	root.PersistentFlags().String("base-url", "", "override the resolved base URL for this call")
	root.PersistentFlags().String("timeout", "", "request timeout, e.g. 30s, 500ms")
	root.PersistentFlags().Bool("no-cache", false, "bypass the response cache for this call")
	root.PersistentFlags().String("cache-ttl", "", "response cache entry lifetime, e.g. 5m")
	root.PersistentFlags().Int("max-attempts", 0, "maximum retry attempts (0 disables retries)")
	root.PersistentFlags().String("retry-base-delay", "", "base retry backoff delay, e.g. 200ms")
	root.PersistentFlags().String("retry-max-delay", "", "retry backoff delay cap, e.g. 5s")
	root.PersistentFlags().Bool("force-retry", false, "retry non-idempotent methods without an idempotency key")

	groups := map[string]*cobra.Command{}
	for _, op := range spec.Commands {
		if op.Display.Hidden {
			continue
		}
		group := groupCommand(root, groups, op.Display.Group)
		group.AddCommand(operationCommand(spec, op, opts, dispatch))
	}
}

func groupCommand(root *cobra.Command, groups map[string]*cobra.Command, name string) *cobra.Command {
	if cmd, ok := groups[name]; ok {
		return cmd
	}
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("%s operations", name),
	}
	groups[name] = cmd
	root.AddCommand(cmd)
	return cmd
}

func operationCommand(spec *cachemodel.CachedSpec, op cachemodel.CachedCommand, opts Options, dispatch Dispatch) *cobra.Command {
	cmd := &cobra.Command{
		Use:     op.Display.Name,
		Aliases: op.Display.Aliases,
		Short:   operationSummary(op),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(cmd.Context(), spec, op, cmd)
		},
	}

	cmd.Flags().StringArrayP("header", "H", nil, "extra request header as Name: Value (repeatable)")
	cmd.Flags().Bool("show-examples", false, "print known request/response examples instead of executing")

	if opts.Legacy {
		if usage := positionalUsage(op.Parameters); usage != "" {
			cmd.Use = op.Display.Name + " " + usage
		}
		cmd.Args = positionalArgsValidator(op.Parameters)
	}

	for _, p := range op.Parameters {
		attachParameterFlag(cmd, p, opts.Legacy)
	}

	if op.RequestBody != nil {
		cmd.Flags().String("body", "", "request body as a JSON string")
		if op.RequestBody.Required {
			_ = cmd.MarkFlagRequired("body")
		}
	}

	return cmd
}

func operationSummary(op cachemodel.CachedCommand) string {
	if op.Deprecated {
		return fmt.Sprintf("%s %s (deprecated)", op.Method, op.PathTemplate)
	}
	return fmt.Sprintf("%s %s", op.Method, op.PathTemplate)
}

// attachParameterFlag registers one flag per parameter, following the
// Boolean-handling rules: query/header booleans are presence-sensitive
// (required ones must be passed, optional ones default false); path
// booleans are always optional at the CLI and substituted "false" when
// absent. When legacy is true, path parameters carry no flag at all
// (including booleans, which lose their presence-sensitive handling): they
// are positional instead, and the invocation translator reads them off
// cmd's non-flag arguments by declared order.
func attachParameterFlag(cmd *cobra.Command, p cachemodel.CachedParameter, legacy bool) {
	name := FlagName(p.Name)

	if legacy && p.Location == cachemodel.LocationPath {
		return
	}

	if p.IsBoolean() {
		cmd.Flags().Bool(name, false, parameterUsage(p))
		if p.Location != cachemodel.LocationPath && p.Required {
			_ = cmd.MarkFlagRequired(name)
		}
		return
	}

	cmd.Flags().String(name, p.Default, parameterUsage(p))
	if p.Required {
		_ = cmd.MarkFlagRequired(name)
	}
}

// positionalUsage renders a usage-line suffix like "<ID> [VERBOSE]" for an
// operation's path parameters, in declared order, with names upper-cased.
func positionalUsage(params []cachemodel.CachedParameter) string {
	var parts []string
	for _, p := range params {
		if p.Location != cachemodel.LocationPath {
			continue
		}
		name := strings.ToUpper(p.Name)
		if p.Required {
			parts = append(parts, fmt.Sprintf("<%s>", name))
		} else {
			parts = append(parts, fmt.Sprintf("[%s]", name))
		}
	}
	return strings.Join(parts, " ")
}

// positionalArgsValidator accepts between the count of required path
// parameters and the total count of path parameters, since positional
// arguments fill path parameters in declared order with no way to name
// which one is being skipped.
func positionalArgsValidator(params []cachemodel.CachedParameter) cobra.PositionalArgs {
	var required, total int
	for _, p := range params {
		if p.Location != cachemodel.LocationPath {
			continue
		}
		total++
		if p.Required {
			required++
		}
	}
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < required || len(args) > total {
			return fmt.Errorf("%s accepts between %d and %d positional path arguments, received %d", cmd.Name(), required, total, len(args))
		}
		return nil
	}
}

func parameterUsage(p cachemodel.CachedParameter) string {
	usage := p.Description
	if usage == "" {
		usage = fmt.Sprintf("%s parameter", p.Location)
	}
	return usage
}

var (
	flagBoundary  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	flagSeparator = regexp.MustCompile(`[_\s]+`)
)

// FlagName normalises a parameter's OpenAPI name to the kebab-case,
// lowercased flag name used on the command line.
func FlagName(paramName string) string {
	s := flagBoundary.ReplaceAllString(paramName, "$1-$2")
	s = flagSeparator.ReplaceAllString(s, "-")
	return strings.ToLower(s)
}
