package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bnema/steam-accounts-cli/internal/adapters/httpapi"
	statusadapter "github.com/bnema/steam-accounts-cli/internal/adapters/render/status"
	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/spf13/cobra"
)

func controlClient(app *app) *httpapi.Client {
	return httpapi.NewClient(app.config.GetString(keyControlListen), nil)
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session status of a running serve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := app.config.GetString(keyControlListen)
			status, err := controlClient(app).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("query control server %s: %w", addr, err)
			}

			if asJSON {
				return writeJSON(cmd, status)
			}

			rendered, err := statusadapter.RenderSession(status, statusadapter.RenderOptions{Addr: addr})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")

	return cmd
}

func newAcceptCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept every pending friend request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result application.AcceptResult
			accept := func(ctx context.Context) error {
				var err error
				result, err = controlClient(app).AcceptAllPending(ctx)
				return err
			}

			if asJSON {
				if err := accept(cmd.Context()); err != nil {
					return err
				}
				return writeJSON(cmd, acceptJSON(result))
			}

			if err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Accepting friend requests...", accept); err != nil {
				return err
			}

			rendered, err := statusadapter.RenderAcceptResult(result)
			if err != nil {
				return fmt.Errorf("render accept result: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")

	return cmd
}

func newFriendCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "friend <peer>",
		Short: "Report whether a peer is a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			friend, err := controlClient(app).IsFriend(cmd.Context(), domain.PeerID(args[0]))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), friend)
			return err
		},
	}
}

func newSendCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <text>...",
		Short: "Send a message to a friend",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := domain.PeerID(args[0])
			if err := controlClient(app).SendMessage(cmd.Context(), peer, strings.Join(args[1:], " ")); err != nil {
				return fmt.Errorf("send message to %s: %w", peer, err)
			}
			return nil
		},
	}
}

type acceptOutput struct {
	Accepted int             `json:"accepted"`
	Failed   []domain.PeerID `json:"failed"`
}

func acceptJSON(result application.AcceptResult) acceptOutput {
	return acceptOutput{Accepted: result.Accepted, Failed: result.FailedPeers()}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
