package cmd

import (
	"fmt"

	statusadapter "github.com/bnema/steam-accounts-cli/internal/adapters/render/status"
	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountAddCmd(app),
	)

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.accounts.List(cmd.Context())
			if err != nil {
				return err
			}

			rendered, err := statusadapter.RenderAccounts(accounts)
			if err != nil {
				return fmt.Errorf("render accounts: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}
}

func newAccountAddCmd(app *app) *cobra.Command {
	var accountID string
	var name string
	var loginName string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := app.accounts.Add(cmd.Context(), application.AddAccountCommand{
				ID:        domain.AccountID(accountID),
				Name:      name,
				LoginName: loginName,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved account %s\n", accountID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the login name)")
	cmd.Flags().StringVar(&loginName, "login", "", "Platform login name")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("login")

	return cmd
}
