package admin

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/config"
	"github.com/netsight/reportd/internal/store"
)

func newResetCacheCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reset-cache",
		Short: "Clears the processed-file ledger so the next sync re-ingests everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, _ := zap.NewDevelopment()
			defer logger.Sync()
			l := logger.Named("admin.reset-cache")

			cfg, err := config.NewFromFile(configPath)
			if err != nil {
				return err
			}

			st, err := store.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database, store.WithLogger(l))
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			removed, err := st.ResetLedger(ctx)
			if err != nil {
				return err
			}

			l.Info("ledger cleared", zap.Int64("markers_removed", removed))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")

	return cmd
}
