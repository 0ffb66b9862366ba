package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"refundsaga/internal/bookings"
	"refundsaga/internal/cancellation"
)

func seedCmd() *cobra.Command {
	var (
		count    int
		amount   string
		currency string
		days     int
		provider string
		refs     string
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create confirmed bookings to cancel",
		Long: `Create confirmed bookings with the default cancellation policy.

With the simulated provider the payment reference controls the outcome:
decline_, timeout_, pending_ and flaky_ prefixes make it misbehave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			owner := uuid.New()
			if userID != "" {
				if owner, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := requireBooking(a); err != nil {
				return err
			}

			now := time.Now().UTC()
			checkIn := now.Add(time.Duration(days) * 24 * time.Hour)
			for i := 0; i < count; i++ {
				id := uuid.New()
				booking := &bookings.Booking{
					ID:                 id,
					UserID:             owner,
					CheckIn:            checkIn,
					CheckOut:           checkIn.Add(48 * time.Hour),
					TotalAmount:        total,
					Currency:           strings.ToUpper(currency),
					Status:             bookings.StatusConfirmed,
					Policy:             cancellation.DefaultPolicy(),
					PaymentID:          "pay_" + strings.ReplaceAll(id.String(), "-", "")[:16],
					PaymentProvider:    provider,
					ProviderPaymentRef: refs + strings.ReplaceAll(id.String(), "-", "")[:16],
				}
				if err := a.BookingRepo.Create(cmd.Context(), booking); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "booking %s  user %s  check-in %s  ref %s\n",
					booking.ID, booking.UserID, booking.CheckIn.Format(time.RFC3339), booking.ProviderPaymentRef)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of bookings")
	cmd.Flags().StringVar(&amount, "amount", "100.00", "Total amount per booking")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency")
	cmd.Flags().IntVar(&days, "days", 14, "Days until check-in")
	cmd.Flags().StringVar(&provider, "provider", "simulated", "Payment provider the booking was paid with")
	cmd.Flags().StringVar(&refs, "ref-prefix", "pi_", "Provider payment reference prefix")
	cmd.Flags().StringVar(&userID, "user", "", "Owner user id (random when empty)")

	return cmd
}
