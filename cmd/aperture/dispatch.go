package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/batch"
	"github.com/kioku/aperture/pkg/cachemodel"
	"github.com/kioku/aperture/pkg/engine"
	"github.com/kioku/aperture/pkg/invocation"
	"github.com/kioku/aperture/pkg/render"
)

const defaultCacheTTL = 5 * time.Minute

// runOperation executes one operation end to end: build the call and
// execution context from parsed flags, run it through the engine, render
// the result to w, and return the raw response body for batch capture.
// legacy selects whether cmd's path parameters were built positionally
// (see newAPISubtree/newBatchOperationCommand).
func runOperation(ctx context.Context, apiName string, spec *cachemodel.CachedSpec, op cachemodel.CachedCommand, cmd *cobra.Command, legacy bool, w *bytes.Buffer) ([]byte, error) {
	if show, _ := cmd.Flags().GetBool("show-examples"); show {
		for _, ex := range op.Examples {
			fmt.Fprintln(w, ex)
		}
		if op.RequestBody != nil && op.RequestBody.Example != "" {
			fmt.Fprintf(w, "request: %s\n", op.RequestBody.Example)
		}
		for _, r := range op.Responses {
			if r.Example != "" {
				fmt.Fprintf(w, "response %s: %s\n", r.StatusCode, r.Example)
			}
		}
		return nil, nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}

	call, err := invocation.BuildOperationCall(op, cmd, legacy)
	if err != nil {
		return nil, err
	}

	retryDefaults := cfg.InvocationRetryDefaults()
	ectx, err := invocation.BuildExecutionContext(cmd, retryDefaults, defaultCacheTTL, time.Duration(cfg.DefaultTimeoutSecs)*time.Second)
	if err != nil {
		return nil, err
	}

	eng := engine.New(respStore)
	result, err := eng.Execute(ctx, spec, op, call, ectx, cfg.URLConfigFor(apiName))
	if err != nil {
		return nil, err
	}

	format, _ := cmd.Flags().GetString("format")
	jqFilter, _ := cmd.Flags().GetString("jq")
	if err := render.Render(w, result, render.Format(format), jqFilter, batch.ApplyJQFilter); err != nil {
		return nil, err
	}

	switch {
	case result.Success != nil:
		return result.Success.Body, nil
	case result.Cached != nil:
		return result.Cached.Body, nil
	default:
		return nil, nil
	}
}

func dispatchOperation(apiName string) func(ctx context.Context, spec *cachemodel.CachedSpec, op cachemodel.CachedCommand, cmd *cobra.Command) error {
	return func(ctx context.Context, spec *cachemodel.CachedSpec, op cachemodel.CachedCommand, cmd *cobra.Command) error {
		var buf bytes.Buffer
		_, err := runOperation(ctx, apiName, spec, op, cmd, legacyPositionalArgs, &buf)
		os.Stdout.Write(buf.Bytes())
		return err
	}
}
