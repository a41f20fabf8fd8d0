package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaihtoaktivaattori/portal/internal/auth"
	"github.com/vaihtoaktivaattori/portal/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := config.GetJWTSecret()
			if len(secret) == 0 {
				return errors.New("JWT_SECRET must be set to sign tokens")
			}
			if ttl <= 0 {
				ttl = config.GetTokenTTL()
			}

			token, err := auth.IssueToken(secret, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "user id the token is issued to")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeChat, auth.ScopeBudget}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
