package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"refundsaga/internal/app"
	"refundsaga/internal/shared/config"
	"refundsaga/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "sagactl",
		Short:   "Operate the refund saga: seed bookings, cancel, reconcile, issue ops tokens",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional, the environment wins
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp connects to the stores and channel the environment points at
func openApp() (*app.App, error) {
	cfg := config.Load()
	return app.New(cfg, logger.GetDefault())
}

// requireBooking fails commands that need the booking store
func requireBooking(a *app.App) error {
	if a.Bookings == nil {
		return fmt.Errorf("APP_ROLE=%s has no booking store; use booking or all", a.Config.Saga.Role)
	}
	return nil
}
