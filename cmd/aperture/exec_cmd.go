package main

import (
	"github.com/spf13/cobra"

	"github.com/kioku/aperture/pkg/aperrors"
)

// newExecCmd mounts the same per-API command trees under "exec" so a
// shortcut invocation ("aperture exec petstore pets list") reads
// identically to the explicit form ("aperture api petstore pets list").
func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <api> <group> <operation>",
		Short: "Shortcut for 'api <name> <group> <operation>'",
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		cmd.RunE = func(*cobra.Command, []string) error {
			return &aperrors.ConfigError{Reason: "load config.toml", Err: err}
		}
		return cmd
	}
	for _, name := range cfg.ListAPIs() {
		cmd.AddCommand(newAPISubtree(name))
	}
	return cmd
}
