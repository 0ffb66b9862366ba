package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"refundsaga/internal/shared/config"
	"refundsaga/internal/shared/middleware"
)

func tokenCmd() *cobra.Command {
	var (
		role string
		user string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToUpper(role)
			if role != middleware.RoleAdmin && role != middleware.RoleOperator {
				return fmt.Errorf("role must be %s or %s", middleware.RoleAdmin, middleware.RoleOperator)
			}

			cfg := config.Load()
			token, err := middleware.IssueToken(cfg.JWT.Secret, user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", middleware.RoleOperator, "ADMIN or OPERATOR")
	cmd.Flags().StringVar(&user, "user", "ops-cli", "Subject written into the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}
