package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netsight/reportd/internal/cmd/admin"
	"github.com/netsight/reportd/internal/cmd/server"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "reportd",
		Short: "Network device report ingestion and dashboard API",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Welcome to reportd!")
		},
	}

	cmd.AddCommand(server.NewCommand())
	cmd.AddCommand(admin.NewCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
