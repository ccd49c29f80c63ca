package cmd

import (
	"github.com/rskv-p/meshd/cmd/cmd_node"
	"github.com/rskv-p/meshd/cmd/cmd_registry"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshd",
	Short: "Lightweight service-mesh substrate: registry, peer bus, pubsub",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(cmd_registry.Cmd)
	rootCmd.AddCommand(cmd_node.Cmd)
}
