package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage account secrets",
	}

	cmd.AddCommand(newAuthSetCmd(app), newAuthRemoveCmd(app))

	return cmd
}

func newAuthSetCmd(app *app) *cobra.Command {
	var accountID string
	var kind string
	var value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a password or shared secret for an account",
		Long:  "Store a password or shared secret for an account. Without --value the secret is read from the terminal without echo.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secretKind, err := parseSecretKind(kind)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("value") {
				value, err = readSecret(cmd, fmt.Sprintf("%s for %s: ", secretKindLabel(secretKind), accountID))
				if err != nil {
					return err
				}
			}

			return app.accounts.SetSecret(cmd.Context(), application.SetSecretCommand{
				ID:    domain.AccountID(accountID),
				Kind:  secretKind,
				Value: value,
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&kind, "kind", "", "Secret kind (password|shared-secret)")
	cmd.Flags().StringVar(&value, "value", "", "Secret value (prompted when omitted)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func newAuthRemoveCmd(app *app) *cobra.Command {
	var accountID string
	var kind string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a stored secret from an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secretKind, err := parseSecretKind(kind)
			if err != nil {
				return err
			}

			return app.accounts.RemoveSecret(cmd.Context(), application.RemoveSecretCommand{
				ID:   domain.AccountID(accountID),
				Kind: secretKind,
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&kind, "kind", "", "Secret kind (password|shared-secret)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func parseSecretKind(raw string) (domain.SecretKind, error) {
	kind := domain.SecretKind(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", application.ErrUnsupportedSecretKind, raw)
	}
	return kind, nil
}

func secretKindLabel(kind domain.SecretKind) string {
	if kind == domain.SecretKindSharedSecret {
		return "Shared secret"
	}
	return "Password"
}
