package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/tunedl/internal/auth"
	"github.com/vrsandeep/tunedl/internal/models"
)

var (
	tokenAdmin bool
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint an access token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		role := models.RoleUser
		if tokenAdmin {
			role = models.RoleAdmin
		}
		tok, err := auth.NewManager(cfg.Auth.JWTSecret).Issue(models.User{ID: args[0], Role: role}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant the admin role")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	rootCmd.AddCommand(tokenCmd)
}
