package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/janhstrom/mindreminder-sub000/internal/auth"
	"github.com/janhstrom/mindreminder-sub000/internal/config"
)

var (
	tokenUserID string
	tokenTTL    time.Duration
	tokenScopes []string
)

// tokenCmd mints a bearer token signed with JWT_SECRET for local testing
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUserID == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		token, err := auth.Sign(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, tokenUserID, tokenScopes, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "subject (user id) of the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope",
		[]string{auth.ScopeMicroActionsRead, auth.ScopeMicroActionsWrite}, "scopes to grant")
	rootCmd.AddCommand(tokenCmd)
}
