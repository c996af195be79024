package invocation

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/cachemodel"
	"github.com/kioku/aperture/pkg/command"
)

func newTestCommand(op cachemodel.CachedCommand) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringArray("header", nil, "")
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().String("idempotency-key", "", "")
	cmd.Flags().String("base-url", "", "")
	cmd.Flags().String("timeout", "", "")
	cmd.Flags().Bool("no-cache", false, "")
	cmd.Flags().String("cache-ttl", "", "")
	cmd.Flags().Int("max-attempts", 0, "")
	cmd.Flags().String("retry-base-delay", "", "")
	cmd.Flags().String("retry-max-delay", "", "")
	cmd.Flags().Bool("force-retry", false, "")
	cmd.Flags().StringArray("server-var", nil, "")

	for _, p := range op.Parameters {
		name := command.FlagName(p.Name)
		if p.IsBoolean() {
			cmd.Flags().Bool(name, false, "")
		} else {
			cmd.Flags().String(name, p.Default, "")
		}
	}
	if op.RequestBody != nil {
		cmd.Flags().String("body", "", "")
	}
	return cmd
}

func TestBuildOperationCallPathAndQuery(t *testing.T) {
	op := cachemodel.CachedCommand{
		OperationID: "getWidget",
		Parameters: []cachemodel.CachedParameter{
			{Name: "widgetId", Location: cachemodel.LocationPath, Required: true, SchemaType: "string"},
			{Name: "includeArchived", Location: cachemodel.LocationQuery, SchemaType: "boolean"},
		},
	}
	cmd := newTestCommand(op)
	if err := cmd.Flags().Set("widget-id", "abc"); err != nil {
		t.Fatal(err)
	}

	call, err := BuildOperationCall(op, cmd, false)
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	if call.PathParams["widgetId"] != "abc" {
		t.Errorf("want widgetId=abc got %q", call.PathParams["widgetId"])
	}
	if _, ok := call.QueryParams["includeArchived"]; ok {
		t.Errorf("unset optional boolean should be absent, not defaulted")
	}
}

func TestBuildOperationCallReadsFlagForCollapsedSeparatorName(t *testing.T) {
	op := cachemodel.CachedCommand{
		OperationID: "getWidget",
		Parameters: []cachemodel.CachedParameter{
			{Name: "user__id", Location: cachemodel.LocationQuery, Required: true, SchemaType: "string"},
		},
	}
	cmd := newTestCommand(op)
	if err := cmd.Flags().Set("user-id", "abc"); err != nil {
		t.Fatal(err)
	}

	call, err := BuildOperationCall(op, cmd, false)
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	if call.QueryParams["user__id"] != "abc" {
		t.Errorf("want user__id=abc got %q", call.QueryParams["user__id"])
	}
}

func TestBuildOperationCallMissingRequiredQuery(t *testing.T) {
	op := cachemodel.CachedCommand{
		Parameters: []cachemodel.CachedParameter{
			{Name: "mode", Location: cachemodel.LocationQuery, Required: true, SchemaType: "boolean"},
		},
	}
	cmd := newTestCommand(op)
	if _, err := BuildOperationCall(op, cmd, false); err == nil {
		t.Fatal("expected error for missing required boolean query parameter")
	}
}

func TestBuildOperationCallPathBooleanDefaultsFalse(t *testing.T) {
	op := cachemodel.CachedCommand{
		Parameters: []cachemodel.CachedParameter{
			{Name: "archived", Location: cachemodel.LocationPath, Required: true, SchemaType: "boolean"},
		},
	}
	cmd := newTestCommand(op)
	call, err := BuildOperationCall(op, cmd, false)
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	if call.PathParams["archived"] != "false" {
		t.Errorf("want archived=false got %q", call.PathParams["archived"])
	}
}

func TestBuildOperationCallLegacyReadsPositionalPathParams(t *testing.T) {
	op := cachemodel.CachedCommand{
		Parameters: []cachemodel.CachedParameter{
			{Name: "widgetId", Location: cachemodel.LocationPath, Required: true, SchemaType: "string"},
			{Name: "includeArchived", Location: cachemodel.LocationQuery, SchemaType: "boolean"},
		},
	}
	cmd := newTestCommand(op)
	if err := cmd.ParseFlags([]string{"abc"}); err != nil {
		t.Fatal(err)
	}

	call, err := BuildOperationCall(op, cmd, true)
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	if call.PathParams["widgetId"] != "abc" {
		t.Errorf("want widgetId=abc got %q", call.PathParams["widgetId"])
	}
}

func TestBuildOperationCallLegacyMissingRequiredPositionalIsError(t *testing.T) {
	op := cachemodel.CachedCommand{
		Parameters: []cachemodel.CachedParameter{
			{Name: "widgetId", Location: cachemodel.LocationPath, Required: true, SchemaType: "string"},
		},
	}
	cmd := newTestCommand(op)
	if _, err := BuildOperationCall(op, cmd, true); err == nil {
		t.Fatal("expected error for missing required positional path argument")
	}
}

func TestBuildOperationCallRejectsInvalidJSONBody(t *testing.T) {
	op := cachemodel.CachedCommand{
		RequestBody: &cachemodel.CachedRequestBody{Required: true},
	}
	cmd := newTestCommand(op)
	if err := cmd.Flags().Set("body", "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := BuildOperationCall(op, cmd, false); err == nil {
		t.Fatal("expected JSON validation error")
	}
}

func TestParseHeaders(t *testing.T) {
	got, err := ParseHeaders([]string{"X-Trace: abc123", "Accept: application/json"})
	if err != nil {
		t.Fatalf("parse headers: %v", err)
	}
	if got["X-Trace"] != "abc123" {
		t.Errorf("want X-Trace=abc123 got %q", got["X-Trace"])
	}
}

func TestParseHeadersRejectsMalformed(t *testing.T) {
	if _, err := ParseHeaders([]string{"no-colon-here"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildExecutionContextDefaultsFallBackToRetryDefaults(t *testing.T) {
	op := cachemodel.CachedCommand{}
	cmd := newTestCommand(op)

	defaults := RetryDefaults{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
	ctx, err := BuildExecutionContext(cmd, defaults, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if ctx.Retry.MaxAttempts != 3 {
		t.Errorf("want 3 got %d", ctx.Retry.MaxAttempts)
	}
	if ctx.Timeout != 30*time.Second {
		t.Errorf("want default timeout got %s", ctx.Timeout)
	}
	if !ctx.Cache.Enabled || ctx.Cache.TTL != time.Minute {
		t.Errorf("unexpected cache config: %+v", ctx.Cache)
	}
}

func TestBuildExecutionContextExplicitOverrides(t *testing.T) {
	op := cachemodel.CachedCommand{}
	cmd := newTestCommand(op)
	_ = cmd.Flags().Set("max-attempts", "5")
	_ = cmd.Flags().Set("no-cache", "true")
	_ = cmd.Flags().Set("server-var", "region=us-east")

	ctx, err := BuildExecutionContext(cmd, RetryDefaults{}, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if ctx.Retry.MaxAttempts != 5 {
		t.Errorf("want 5 got %d", ctx.Retry.MaxAttempts)
	}
	if ctx.Cache.Enabled {
		t.Error("expected cache disabled")
	}
	if ctx.ServerVars["region"] != "us-east" {
		t.Errorf("unexpected server vars: %+v", ctx.ServerVars)
	}
}
