package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netsight/reportd/internal/analytics"
	"github.com/netsight/reportd/internal/auth"
	"github.com/netsight/reportd/internal/config"
	"github.com/netsight/reportd/internal/ingest"
	"github.com/netsight/reportd/internal/objstore"
	"github.com/netsight/reportd/internal/report"
	api "github.com/netsight/reportd/internal/server"
	"github.com/netsight/reportd/internal/store"
	"github.com/netsight/reportd/internal/syncer"
)

func newStartCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts the background sync loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.NewFromFile(configPath)
			if err != nil {
				return err
			}
			applyEnvOverrides(cfg)

			logger := newLogger(cfg.Logger.Level)
			defer logger.Sync()
			l := logger.Named("reportd")
			l.Info("starting reportd", zap.String("addr", cfg.HTTP.Addr))

			st, err := store.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database,
				store.WithLogger(l.Named("store")),
			)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			if err := st.EnsureIndexes(ctx); err != nil {
				return err
			}

			adminHash, err := auth.HashPassword(cfg.Auth.AdminPassword)
			if err != nil {
				return err
			}
			if err := st.EnsureAdmin(ctx, adminHash); err != nil {
				return err
			}

			// Missing credentials disable remote sync but never the API.
			var lister syncer.Lister
			var getter ingest.Getter
			if cfg.Local.Path != "" {
				local := objstore.NewLocal(cfg.Local.Path,
					objstore.LocalWithLogger(l.Named("objstore")),
				)
				lister, getter = local, local
			} else {
				remote, err := objstore.New(
					objstore.WithLogger(l.Named("objstore")),
					objstore.WithAccount(cfg.R2.AccountID),
					objstore.WithCredentials(cfg.R2.AccessKeyID, cfg.R2.SecretAccessKey),
					objstore.WithBucket(cfg.R2.Bucket),
					objstore.WithPrefix(cfg.R2.Prefix),
				)
				switch {
				case errors.Is(err, objstore.ErrNoCredentials):
					l.Warn("object store credentials missing, remote sync disabled")
				case err != nil:
					return err
				default:
					lister, getter = remote, remote
				}
			}

			parser := report.NewParser(report.WithLogger(l.Named("parser")))
			loader := ingest.NewLoader(parser, st, st,
				ingest.LoaderWithLogger(l.Named("loader")),
			)

			orch := syncer.New(lister, getter, st, loader,
				syncer.WithLogger(l.Named("syncer")),
				syncer.WithInterval(cfg.Sync.Interval.Std()),
				syncer.WithMaxConcurrentDownloads(cfg.Sync.MaxConcurrentDownloads),
			)

			engineOpts := []analytics.EngineOption{
				analytics.WithLogger(l.Named("analytics")),
			}
			if len(cfg.Analytics.UpStates) > 0 {
				engineOpts = append(engineOpts, analytics.WithUpStates(cfg.Analytics.UpStates))
			}
			if cfg.Analytics.HealthAlertThreshold > 0 {
				engineOpts = append(engineOpts, analytics.WithHealthAlertThreshold(cfg.Analytics.HealthAlertThreshold))
			}
			if cfg.Analytics.SummarySampleSize > 0 {
				engineOpts = append(engineOpts, analytics.WithSummarySampleSize(cfg.Analytics.SummarySampleSize))
			}
			engine := analytics.NewEngine(st, engineOpts...)

			tokens := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL.Std())

			srv := api.New(engine, st, st, orch, tokens,
				api.WithLogger(l.Named("http")),
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return orch.Run(ctx)
			})
			g.Go(func() error {
				return srv.Start(ctx, cfg.HTTP.Addr)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")

	return cmd
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file, e.g. REPORTD_R2_SECRET_ACCESS_KEY.
func applyEnvOverrides(cfg *config.Config) {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("REPORTD")

	overrides := map[string]*string{
		"mongo_uri":            &cfg.Mongo.URI,
		"r2_account_id":        &cfg.R2.AccountID,
		"r2_access_key_id":     &cfg.R2.AccessKeyID,
		"r2_secret_access_key": &cfg.R2.SecretAccessKey,
		"auth_token_secret":    &cfg.Auth.TokenSecret,
		"auth_admin_password":  &cfg.Auth.AdminPassword,
	}
	for key, dst := range overrides {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
