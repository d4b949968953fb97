package server

import (
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "server",
		Short: "Manages the report sync loop and dashboard API",
	}
	cmd.AddCommand(newStartCommand())
	return cmd
}
