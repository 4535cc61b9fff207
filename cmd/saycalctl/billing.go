package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/paul-bouzian/saycal/internal/billing"
)

func init() {
	billingCmd := &cobra.Command{Use: "billing", Short: "Billing operations"}

	var userID, customerID string
	attachCmd := &cobra.Command{
		Use:   "attach",
		Short: "Link a Stripe customer to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(d *database) error {
				svc := billing.NewService(d.store.Subscriptions(), nil, nil, zerolog.Nop())
				if err := svc.AttachCustomer(cmd.Context(), userID, customerID); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(os.Stdout, "attached %s to %s\n", customerID, userID)
				return nil
			})
		},
	}
	attachCmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	attachCmd.Flags().StringVarP(&customerID, "customer", "c", "", "Stripe customer ID (required)")
	_ = attachCmd.MarkFlagRequired("user")
	_ = attachCmd.MarkFlagRequired("customer")
	billingCmd.AddCommand(attachCmd)

	rootCmd.AddCommand(billingCmd)
}
