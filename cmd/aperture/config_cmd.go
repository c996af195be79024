package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/aperturecfg"
	"github.com/kioku/aperture/pkg/spec"
	"github.com/kioku/aperture/pkg/transform"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage registered APIs and engine defaults",
	}

	cmd.AddCommand(
		newConfigAddCmd(),
		newConfigRemoveCmd(),
		newConfigEditCmd(),
		newConfigListCmd(),
		newConfigReinitCmd(),
		newConfigListURLsCmd(),
		newConfigSetURLCmd(),
		newConfigListSecretsCmd(),
		newConfigSetSecretCmd(),
		newConfigSettingsCmd(),
		newConfigClearResponseCacheCmd(),
		newConfigCacheStatsCmd(),
	)
	return cmd
}

func newConfigAddCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "add <name> <spec-file>",
		Short: "Register a new API from an OpenAPI document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addAPI(cmd.Context(), args[0], args[1], strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject specs with unsupported security schemes instead of skipping them")
	return cmd
}

func addAPI(ctx context.Context, name, specFile string, strict bool) error {
	if err := aperturecfg.ValidateAPIName(name); err != nil {
		return err
	}

	data, err := os.ReadFile(specFile)
	if err != nil {
		return &aperrors.SpecError{Reason: "read spec file " + specFile, Err: err}
	}

	var opts []spec.ParserOption
	if strict {
		opts = append(opts, spec.WithStrictMode())
	}
	parser := spec.NewParser(opts...)
	doc, _, err := parser.Parse(ctx, data)
	if err != nil {
		return err
	}

	result := spec.Validate(doc, parser.Strict())
	if !result.Valid {
		msg := "spec validation failed:"
		for _, e := range result.Errors {
			msg += "\n  " + e.Path + ": " + e.Message
		}
		return &aperrors.SpecError{Reason: msg}
	}

	if err := spec.ResolveParameterRefs(doc); err != nil {
		return err
	}

	cached, warnings, err := transform.Transform(name, doc, nil)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "aperture: warning: "+w)
	}

	destPath := filepath.Join(cfgMgr.SpecsDir(), name+filepath.Ext(specFile))
	if err := os.WriteFile(destPath, data, 0o600); err != nil {
		return &aperrors.SpecError{Reason: "copy spec into config directory", Err: err}
	}

	if err := specs.Save(cached, destPath); err != nil {
		return err
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}
	if err := cfg.AddAPI(name, aperturecfg.APIConfig{SpecPath: destPath, BaseURL: cached.BaseURL}); err != nil {
		return err
	}
	if err := cfgMgr.Save(cfg); err != nil {
		return err
	}

	fmt.Printf("registered %s: %d operations, %d skipped\n", name, len(cached.Commands), len(cached.SkippedEndpoints))
	return nil
}

func newConfigRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			if err := cfg.RemoveAPI(args[0]); err != nil {
				return err
			}
			if err := specs.Invalidate(args[0]); err != nil {
				return err
			}
			return cfgMgr.Save(cfg)
		},
	}
}

func newConfigEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <name> <spec-file>",
		Short: "Re-parse and replace a registered API's spec",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			if err := cfg.RemoveAPI(args[0]); err != nil {
				return err
			}
			if err := cfgMgr.Save(cfg); err != nil {
				return err
			}
			return addAPI(cmd.Context(), args[0], args[1], false)
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			for _, name := range cfg.ListAPIs() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newConfigReinitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reinit",
		Short: "Re-parse every registered API's spec from its stored copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			for _, name := range cfg.ListAPIs() {
				apiCfg := cfg.APIs[name]
				if err := addAPI(cmd.Context(), name, apiCfg.SpecPath, false); err != nil {
					return fmt.Errorf("reinit %s: %w", name, err)
				}
			}
			return nil
		},
	}
}

func newConfigListURLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-urls <name>",
		Short: "Show an API's base URL and environment URL map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			base, envs, err := cfg.ListURLs(args[0])
			if err != nil {
				return err
			}
			fmt.Println("base:", base)
			for env, url := range envs {
				fmt.Printf("%s: %s\n", env, url)
			}
			return nil
		},
	}
}

func newConfigSetURLCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "set-url <name> <url>",
		Short: "Set an API's base URL, or one environment's URL with --env",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			if err := cfg.SetURL(args[0], env, args[1]); err != nil {
				return err
			}
			return cfgMgr.Save(cfg)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "set this APERTURE_ENV value's URL instead of the base URL")
	return cmd
}

func newConfigListSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-secrets <name>",
		Short: "Show an API's security-scheme to environment-variable bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			secrets, err := cfg.ListSecrets(args[0])
			if err != nil {
				return err
			}
			for scheme, envVar := range secrets {
				fmt.Printf("%s -> %s\n", scheme, envVar)
			}
			return nil
		},
	}
}

func newConfigSetSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret <name> <scheme> <env-var>",
		Short: "Record which environment variable backs a security scheme",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgMgr.Load()
			if err != nil {
				return err
			}
			if err := cfg.SetSecret(args[0], args[1], args[2]); err != nil {
				return err
			}
			return cfgMgr.Save(cfg)
		},
	}
}

func newConfigSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Get or set engine-wide defaults",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one engine-wide setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := cfgMgr.Load()
				if err != nil {
					return err
				}
				return printSetting(cfg, args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one engine-wide setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := cfgMgr.Load()
				if err != nil {
					return err
				}
				if err := applySetting(cfg, args[0], args[1]); err != nil {
					return err
				}
				return cfgMgr.Save(cfg)
			},
		},
	)
	return cmd
}

func newConfigClearResponseCacheCmd() *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "clear-response-cache",
		Short: "Remove cached responses, optionally scoped to one API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return respStore.Clear(api)
		},
	}
	cmd.Flags().StringVar(&api, "api", "", "only clear cached responses for this API")
	return cmd
}

func newConfigCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats",
		Short: "Show response-cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := respStore.Stat()
			if err != nil {
				return &aperrors.CacheError{Reason: "read cache statistics", Err: err}
			}
			fmt.Printf("total entries: %d\n", stats.Total)
			fmt.Printf("valid entries: %d\n", stats.Valid)
			fmt.Printf("expired entries: %d\n", stats.Expired)
			fmt.Printf("total bytes: %d\n", stats.TotalBytes)
			for api, hits := range stats.HitsByAPI {
				fmt.Printf("%s: %d\n", api, hits)
			}
			return nil
		},
	}
}

func printSetting(cfg *aperturecfg.GlobalConfig, key string) error {
	switch key {
	case "default_timeout_secs":
		fmt.Println(cfg.DefaultTimeoutSecs)
	case "retry_defaults.max_attempts":
		fmt.Println(cfg.RetryDefaults.MaxAttempts)
	case "retry_defaults.base_delay":
		fmt.Println(cfg.RetryDefaults.BaseDelay)
	case "retry_defaults.max_delay":
		fmt.Println(cfg.RetryDefaults.MaxDelay)
	case "response_cache_max_entries":
		fmt.Println(cfg.ResponseCacheMax)
	default:
		return &aperrors.ConfigError{Reason: "unknown setting " + key}
	}
	return nil
}

func applySetting(cfg *aperturecfg.GlobalConfig, key, value string) error {
	switch key {
	case "default_timeout_secs":
		n, err := parsePositiveInt(value)
		if err != nil || n < 1 {
			return &aperrors.ConfigError{Reason: "default_timeout_secs must be a positive integer", Err: err}
		}
		cfg.DefaultTimeoutSecs = n
	case "retry_defaults.max_attempts":
		n, err := parsePositiveInt(value)
		if err != nil || n < 0 {
			return &aperrors.ConfigError{Reason: "retry_defaults.max_attempts must be a non-negative integer", Err: err}
		}
		cfg.RetryDefaults.MaxAttempts = n
	case "retry_defaults.base_delay":
		cfg.RetryDefaults.BaseDelay = value
	case "retry_defaults.max_delay":
		cfg.RetryDefaults.MaxDelay = value
	case "response_cache_max_entries":
		n, err := parsePositiveInt(value)
		if err != nil || n < 1 {
			return &aperrors.ConfigError{Reason: "response_cache_max_entries must be a positive integer", Err: err}
		}
		cfg.ResponseCacheMax = n
	default:
		return &aperrors.ConfigError{Reason: "unknown setting " + key}
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
