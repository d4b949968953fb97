package admin

import (
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations against the report store",
	}
	cmd.AddCommand(newResetCacheCommand())
	cmd.AddCommand(newCreateUserCommand())
	return cmd
}
