package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/paul-bouzian/saycal/internal/auth"
)

func init() {
	tokenCmd := &cobra.Command{Use: "token", Short: "API tokens"}

	var userID string
	var ttl time.Duration
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token with SAYCAL_AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("SAYCAL_AUTH_JWT_SECRET")
			if secret == "" {
				return errors.New("SAYCAL_AUTH_JWT_SECRET is not set")
			}
			tok, err := auth.IssueToken(secret, userID, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, tok)
			return nil
		},
	}
	issueCmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	issueCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = issueCmd.MarkFlagRequired("user")
	tokenCmd.AddCommand(issueCmd)

	rootCmd.AddCommand(tokenCmd)
}
