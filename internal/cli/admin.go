package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/notify"
)

var adminFlags struct {
	name     string
	email    string
	password string
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator or promote an existing account",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		tokens := auth.NewTokens(env.cfg.JWTSecret, env.cfg.TokenTTL)
		authenticator := auth.NewAuthenticator(env.store, tokens, notify.NewLogNotifier(env.logger),
			auth.Options{SeedAdminEmail: env.cfg.SeedAdminEmail}, env.logger)

		u, err := authenticator.EnsureAdmin(cmd.Context(), adminFlags.name, adminFlags.email, adminFlags.password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Administrator %s <%s> ready (id %s)\n", u.Name, u.Email, u.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminFlags.name, "name", "Admin", "display name")
	createAdminCmd.Flags().StringVar(&adminFlags.email, "email", "", "account email")
	createAdminCmd.Flags().StringVar(&adminFlags.password, "password", "", "account password")
	createAdminCmd.MarkFlagRequired("email")
	createAdminCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAdminCmd)
}
