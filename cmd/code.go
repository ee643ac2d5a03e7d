package cmd

import (
	"errors"
	"fmt"

	authadapter "github.com/bnema/steam-accounts-cli/internal/adapters/auth"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/spf13/cobra"
)

var errNoSharedSecret = errors.New("account has no shared secret; use auth set --kind shared-secret")

func newCodeCmd(app *app) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "code",
		Short: "Print the current guard code of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			credentials, err := app.accounts.Credentials(cmd.Context(), domain.AccountID(accountID))
			if err != nil {
				return err
			}
			if !credentials.HasSharedSecret() {
				return errNoSharedSecret
			}

			code, err := authadapter.GenerateGuardCode(credentials.SharedSecret, app.clock.Now())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
