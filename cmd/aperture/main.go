// Package main is the entry point for the aperture CLI.
// aperture turns an OpenAPI specification into a semantic command-line
// client: one subcommand per operation, with built-in caching, retries,
// and batch execution.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/aperturecfg"
	"github.com/kioku/aperture/pkg/cachestore"
	"github.com/kioku/aperture/pkg/respcache"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Global dependencies, wired once at startup.
var (
	cfgMgr    *aperturecfg.Manager
	specs     *cachestore.Store
	respStore *respcache.Store
)

// legacyPositionalArgs selects the legacy positional-argument command-tree
// mode. The command tree is built once, before cobra ever parses flags, so
// this has to be decided by scanning os.Args up front rather than by
// reading a parsed flag value.
var legacyPositionalArgs = scanLegacyPositionalArgs(os.Args[1:])

func scanLegacyPositionalArgs(args []string) bool {
	for _, a := range args {
		if a == "--legacy-positional-args" || a == "--legacy-positional-args=true" {
			return true
		}
	}
	return false
}

func init() {
	root, err := aperturecfg.RootDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "aperture: resolve config directory: %v\n", err)
		os.Exit(1)
	}

	cfgMgr, err = aperturecfg.NewManager(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aperture: initialize config directory: %v\n", err)
		os.Exit(1)
	}

	specs = cachestore.New(cfgMgr.CacheDir())

	cfg, err := cfgMgr.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "aperture: load config.toml: %v\n", err)
		os.Exit(1)
	}

	respStore, err = respcache.New(cfgMgr.CacheDir(), cfg.ResponseCacheMax)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aperture: initialize response cache: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if err := Execute(); err != nil {
		code := exitCodeFor(err)
		fmt.Fprintln(os.Stderr, "aperture: "+err.Error())
		os.Exit(code)
	}
}

// Execute builds and runs the root command.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:     "aperture",
		Short:   "Turn OpenAPI specifications into a command-line client",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("legacy-positional-args", legacyPositionalArgs,
		"generate path parameters as positional arguments instead of flags")

	rootCmd.AddCommand(
		newConfigCmd(),
		newAPICmd(),
		newExecCmd(),
		newListCommandsCmd(),
		newDocsCmd(),
		newOverviewCmd(),
		newSearchCmd(),
	)

	return rootCmd.Execute()
}
