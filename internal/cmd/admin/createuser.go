package admin

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/auth"
	"github.com/netsight/reportd/internal/config"
	"github.com/netsight/reportd/internal/store"
)

func newCreateUserCommand() *cobra.Command {
	var (
		configPath string
		username   string
		password   string
		role       string
		sites      []string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Creates a dashboard account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, _ := zap.NewDevelopment()
			defer logger.Sync()
			l := logger.Named("admin.create-user")

			if role != auth.RoleAdmin && role != auth.RoleUser {
				return fmt.Errorf("unknown role: %q", role)
			}

			cfg, err := config.NewFromFile(configPath)
			if err != nil {
				return err
			}

			st, err := store.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database, store.WithLogger(l))
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			err = st.CreateUser(ctx, store.User{
				Username:     username,
				PasswordHash: hash,
				Role:         role,
				AllowedSites: sites,
			})
			if err != nil {
				return err
			}

			l.Info("user created",
				zap.String("username", username),
				zap.String("role", role),
				zap.Strings("allowed_sites", sites),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for the new account")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password for the new account")
	cmd.Flags().StringVarP(&role, "role", "r", auth.RoleUser, "Account role (admin or user)")
	cmd.Flags().StringSliceVarP(&sites, "site", "s", nil, "Site the account may query (repeatable)")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")

	return cmd
}
