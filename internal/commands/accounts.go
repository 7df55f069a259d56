package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/output"
)

func newAccountsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts in the local SQLite database",
	}

	var dbPath string
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to SQLITE_PATH)")

	cmd.AddCommand(newAccountsAddCommand(flags, &dbPath))
	cmd.AddCommand(newAccountsListCommand(flags, &dbPath))
	return cmd
}

func newAccountsAddCommand(flags *globalFlags, dbPath *string) *cobra.Command {
	var acc domain.BankAccount
	var format string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a bank account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bankFormat, err := domain.ParseBankFormat(format)
			if err != nil {
				return err
			}
			acc.BankFormat = bankFormat
			return runAccountsAdd(cmd.Context(), flags, *dbPath, &acc, output.New(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&acc.ID, "id", "", "account ID (generated when empty)")
	cmd.Flags().StringVar(&acc.UserID, "user", "", "owner user ID (required)")
	cmd.Flags().StringVar(&acc.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&format, "bank-format", "", "statement format: revolut, bpi, ... (required)")
	cmd.Flags().StringVar(&acc.Currency, "currency", "EUR", "ISO 4217 currency code")
	cmd.Flags().StringVar(&acc.BankName, "bank-name", "", "bank name")
	cmd.Flags().StringVar(&acc.Last4, "last4", "", "last four digits")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("bank-format")

	return cmd
}

func runAccountsAdd(ctx context.Context, flags *globalFlags, dbPath string, acc *domain.BankAccount, out *output.Printer) error {
	ctx, cfg, _, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	if dbPath == "" {
		dbPath = cfg.SQLitePath
	}

	st, err := openSQLite(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	if err := st.CreateAccount(ctx, acc); err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	out.Success(fmt.Sprintf("created account %s (%s)", acc.ID, acc.BankFormat))
	return nil
}

func newAccountsListCommand(flags *globalFlags, dbPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, _, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			path := *dbPath
			if path == "" {
				path = cfg.SQLitePath
			}

			st, err := openSQLite(path)
			if err != nil {
				return err
			}
			defer st.Close()

			accounts, err := st.ListAccounts(ctx, userID)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Accounts(accounts)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
