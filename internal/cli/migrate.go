package cli

import (
	"fmt"

	"atsboost/internal/common"
	"atsboost/internal/store"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the subscriptions and payment_logs tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		logger := getLoggerFromContext(cmd.Context())

		pg, err := store.Open(cfg.Datastore)
		if err != nil {
			return fmt.Errorf("failed to open datastore: %w", err)
		}
		defer func() { _ = pg.Close() }()

		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("Datastore schema is up to date")
		return nil
	},
}

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Inspect the payment audit log",
}

var paymentsHistoryFlags struct {
	user  string
	limit int
}

var paymentsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the newest payment audit rows for a user as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		logger := getLoggerFromContext(cmd.Context())

		if paymentsHistoryFlags.user == "" {
			return fmt.Errorf("--user is required")
		}

		pg, err := store.Open(cfg.Datastore)
		if err != nil {
			return fmt.Errorf("failed to open datastore: %w", err)
		}
		defer func() { _ = pg.Close() }()

		logs, err := pg.RecentPaymentLogs(cmd.Context(), paymentsHistoryFlags.user, paymentsHistoryFlags.limit)
		if err != nil {
			return err
		}
		return common.NewOutputHandler(logger).HandleOutput(logs, common.CommandConfig{OutputFormat: "json"})
	},
}

func init() {
	paymentsHistoryCmd.Flags().StringVar(&paymentsHistoryFlags.user, "user", "", "User ID to list payments for")
	paymentsHistoryCmd.Flags().IntVar(&paymentsHistoryFlags.limit, "limit", 20, "Maximum rows to print")
	paymentsCmd.AddCommand(paymentsHistoryCmd)
}
