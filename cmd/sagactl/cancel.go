package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"refundsaga/internal/bookings"
	"refundsaga/internal/messaging"
)

func cancelCmd() *cobra.Command {
	var (
		userID string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "cancel [booking-id]",
		Short: "Cancel a booking on behalf of its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid booking id: %w", err)
			}
			requester, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := requireBooking(a); err != nil {
				return err
			}

			result, err := a.Bookings.RequestCancellation(cmd.Context(), bookings.CancelRequest{
				BookingID:   bookingID,
				RequesterID: requester,
				Reason:      reason,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "booking %s  %s\n", result.Booking.ID, result.Booking.Status)
			fmt.Fprintf(out, "tier %s  refund %s %s\n", result.Decision.Tier, result.Decision.Amount.StringFixed(2), result.Decision.Currency)
			if result.RefundID == nil {
				return nil
			}
			fmt.Fprintf(out, "refund id %s  published %t\n", result.RefundID, result.RequestPublished)

			// the in-process bus has no consumer once this command exits
			if memory, ok := a.Channel.(*messaging.MemoryChannel); ok {
				a.Subscribe()
				memory.DeliverPending(cmd.Context())
				booking, err := a.Bookings.GetBooking(cmd.Context(), bookingID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "settled %s\n", booking.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner user id")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Cancellation reason")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote [booking-id]",
		Short: "Show what a cancellation would refund right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid booking id: %w", err)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := requireBooking(a); err != nil {
				return err
			}

			decision, err := a.Bookings.QuoteRefund(cmd.Context(), bookingID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tier %s  refund %s %s\n", decision.Tier, decision.Amount.StringFixed(2), decision.Currency)
			return nil
		},
	}
}
