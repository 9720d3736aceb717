// Package cmd provides CLI commands for microdc-server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time via ldflags)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// configPath is the YAML configuration file shared by every command.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "microdc-server",
	Short: "microdc - micro datacenter control plane",
	Long: `microdc manages workspaces and VLAN-tagged virtual networks across
micro datacenters backed by a virtualization cluster.

It consists of:
  - A REST API for datacenters, workspaces, networks and device templates
  - An allocator for workspace addresses and VLAN tags
  - A reconciler converging the cluster onto the stored desired state`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("MICRODC_CONFIG"),
		"Path to YAML configuration file (env: MICRODC_CONFIG)")
}

// versionString returns formatted version information
func versionString() string {
	return fmt.Sprintf("microdc %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
