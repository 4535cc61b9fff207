package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/paul-bouzian/saycal/internal/quota"
)

func init() {
	var userID string
	limit := 100
	if v, err := strconv.Atoi(os.Getenv("SAYCAL_FREE_MONTHLY_VOICE_LIMIT")); err == nil {
		limit = v
	}
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Show a user's voice quota for the current month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(d *database) error {
				return runQuota(cmd.Context(), d, userID, limit, os.Stdout)
			})
		},
	}
	quotaCmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	quotaCmd.Flags().IntVar(&limit, "limit", limit, "Free monthly voice limit")
	_ = quotaCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(quotaCmd)
}

func runQuota(ctx context.Context, d *database, userID string, limit int, out io.Writer) error {
	q, err := quota.NewGate(d.store.Subscriptions(), limit, zerolog.Nop()).Peek(ctx, userID)
	if err != nil {
		return err
	}
	remaining := strconv.Itoa(q.Remaining)
	if q.Remaining == quota.Unlimited {
		remaining = "unlimited"
	}
	_, err = fmt.Fprintf(out, "user:      %s\nplan:      %s\nperiod:    %s\nused:      %d\nremaining: %s\n",
		userID, q.Plan, q.Period, q.Used, remaining)
	return err
}
