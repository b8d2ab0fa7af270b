// Package cmd provides the CLI commands for certwatch.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/certwatch/certwatch/pkg/version"
)

// NewRootCmd creates the root command for the certwatch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certwatch",
		Short: "Hot-reloading TLS bundle server",
		Long: `Certwatch serves TLS from bundles of PEM files and rebuilds them
automatically when the files change on disk, including rotations
delivered through symlink swaps (Kubernetes Secret/ConfigMap mounts,
ACME archive directories).

A failed rebuild never revokes the last-known-good materials.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("certwatch version {{.Version}}\n")

	cmd.PersistentFlags().String("config", "certwatch.yaml", "Path to the configuration file")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
