package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/batch"
	"github.com/kioku/aperture/pkg/cachemodel"
	"github.com/kioku/aperture/pkg/command"
	"github.com/kioku/aperture/pkg/invocation"
)

// loadAPI loads a registered API's cached spec. If the stored spec copy
// changed since it was last parsed, the cache is not rebuilt: the stale
// cache error from cachestore.Load is returned and 'config reinit' has to
// be run.
func loadAPI(name string) (*cachemodel.CachedSpec, error) {
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}
	apiCfg, ok := cfg.APIs[name]
	if !ok {
		return nil, &aperrors.ConfigError{Reason: "no such API: " + name + "; run 'aperture config add'"}
	}
	return specs.Load(name, apiCfg.SpecPath)
}

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <name>",
		Short: "Invoke an operation on a registered API",
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return cmd
	}
	for _, name := range cfg.ListAPIs() {
		cmd.AddCommand(newAPISubtree(name))
	}
	return cmd
}

func newAPISubtree(name string) *cobra.Command {
	apiRoot := &cobra.Command{
		Use:   name,
		Short: "Operations for the " + name + " API",
	}

	var batchFile string
	var batchConcurrency int
	var batchRate float64
	var describeJSON bool
	apiRoot.PersistentFlags().StringVar(&batchFile, "batch-file", "", "run a batch of operations described in this JSON or YAML file")
	apiRoot.PersistentFlags().IntVar(&batchConcurrency, "batch-concurrency", 5, "maximum concurrent batch operations")
	apiRoot.PersistentFlags().Float64Var(&batchRate, "batch-rate-limit", 0, "maximum batch operations per second (0 disables the limit)")
	apiRoot.Flags().BoolVar(&describeJSON, "describe-json", false, "print the cached command tree as JSON instead of executing anything")

	apiRoot.RunE = func(cmd *cobra.Command, args []string) error {
		spec, err := loadAPI(name)
		if err != nil {
			return err
		}
		if describeJSON {
			return printDescribeJSON(spec)
		}
		if batchFile != "" {
			return runBatch(cmd.Context(), name, spec, batchFile, batchConcurrency, batchRate)
		}
		return cmd.Help()
	}

	spec, err := loadAPI(name)
	if err != nil {
		apiRoot.Short += " (unavailable: " + err.Error() + ")"
		return apiRoot
	}

	command.Build(apiRoot, spec, command.Options{Legacy: legacyPositionalArgs}, dispatchOperation(name))
	return apiRoot
}

func printDescribeJSON(spec *cachemodel.CachedSpec) error {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return &aperrors.SpecError{Reason: "marshal describe-json output", Err: err}
	}
	fmt.Println(string(data))
	return nil
}

func runBatch(ctx context.Context, apiName string, spec *cachemodel.CachedSpec, filePath string, concurrency int, rate float64) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return &aperrors.BatchError{Reason: "read batch file " + filePath, Err: err}
	}
	file, err := batch.ParseFile(data)
	if err != nil {
		return err
	}

	runner := func(ctx context.Context, op batch.Operation, args []string, headers map[string]string) ([]byte, error) {
		if len(args) < 2 {
			return nil, &aperrors.BatchError{OperationID: op.ID, Reason: "batch operation args must be [group, operation, ...flags]"}
		}
		group, name := args[0], args[1]
		cached, ok := invocation.FindOperation(spec, group, name)
		if !ok {
			return nil, &aperrors.BatchError{OperationID: op.ID, Reason: "unknown operation " + group + " " + name}
		}

		opCmd := newBatchOperationCommand(*cached)
		for headerName, headerValue := range headers {
			_ = opCmd.Flags().Set("header", headerName+": "+headerValue)
		}
		if err := opCmd.ParseFlags(args[2:]); err != nil {
			return nil, &aperrors.InvocationError{Reason: "parse batch operation flags", Err: err}
		}
		if op.UseCache != nil && !*op.UseCache {
			_ = opCmd.Flags().Set("no-cache", "true")
		}

		var buf bytes.Buffer
		body, err := runOperation(ctx, apiName, spec, *cached, opCmd, false, &buf)
		fmt.Printf("--- %s ---\n%s", op.ID, buf.String())
		return body, err
	}

	result, err := batch.Run(ctx, file, batch.Config{MaxConcurrency: concurrency, RateLimitPerSec: rate, ContinueOnError: true}, runner)
	if err != nil {
		return err
	}

	fmt.Printf("batch complete: %d succeeded, %d failed, took %s\n", result.SuccessCount, result.FailureCount, result.TotalDuration)
	if result.FailureCount > 0 {
		return &aperrors.BatchError{Reason: fmt.Sprintf("%d of %d operations failed", result.FailureCount, len(result.Results))}
	}
	return nil
}

// newBatchOperationCommand builds a throwaway cobra.Command carrying the
// same global and per-parameter flags the generated tree would, so a
// batch operation's arg list parses identically to an interactive
// invocation. Batch files always address path parameters by flag,
// regardless of the global legacy-positional-args switch: batch args are
// already a structured [group, operation, ...flags] list, not freeform
// positional CLI input.
func newBatchOperationCommand(op cachemodel.CachedCommand) *cobra.Command {
	cmd := &cobra.Command{Use: op.Display.Name}
	root := &cobra.Command{Use: "batch"}
	command.Build(root, &cachemodel.CachedSpec{Commands: []cachemodel.CachedCommand{op}}, command.Options{}, nil)
	for _, child := range root.Commands() {
		for _, leaf := range child.Commands() {
			if leaf.Name() == op.Display.Name {
				cmd = leaf
			}
		}
	}
	return cmd
}
