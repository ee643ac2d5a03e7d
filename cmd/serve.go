package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	authadapter "github.com/bnema/steam-accounts-cli/internal/adapters/auth"
	"github.com/bnema/steam-accounts-cli/internal/adapters/httpapi"
	"github.com/bnema/steam-accounts-cli/internal/adapters/platform/bridge"
	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var errBridgeGone = errors.New("platform bridge disconnected")

func newServeCmd(app *app) *cobra.Command {
	var accountID string
	var code string
	var promptCode bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Log on an account and serve the control plane",
		Long:  "Log on an account through the platform bridge, accept incoming friend requests, and serve the local control plane until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if promptCode && code == "" {
				var err error
				code, err = readSecret(cmd, "Guard code: ")
				if err != nil {
					return err
				}
			}

			return runServe(ctx, cmd, app, domain.AccountID(accountID), code)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&code, "code", "", "Guard code for the first logon")
	cmd.Flags().BoolVar(&promptCode, "prompt-code", false, "Prompt for the guard code")
	cmd.Flags().String("socket", "", "Platform bridge socket (default from platform.socket)")
	_ = app.config.BindPFlag(keyPlatformSocket, cmd.Flags().Lookup("socket"))
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, app *app, accountID domain.AccountID, code string) error {
	logger := app.logger.WithField("account", accountID)

	credentials, err := app.accounts.Credentials(ctx, accountID)
	if err != nil {
		return err
	}

	client, err := bridge.Dial(ctx, app.config.GetString(keyPlatformSocket), bridge.WithLogger(app.logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.WithError(closeErr).Debug("Closing platform bridge")
		}
	}()

	cfg := sessionConfig(app.config)
	cfg.Credentials = credentials
	cfg.DataDir = domain.DataDir(app.config.GetString(keyDataRoot), credentials.AccountName)

	service := application.NewService(client, authadapter.NewGuardCodes(app.clock), app.clock, app.logger, cfg)
	if err := service.Login(ctx, code); err != nil {
		return fmt.Errorf("log on account %s: %w", accountID, err)
	}

	server, err := httpapi.StartServer(app.config.GetString(keyControlListen), service, app.logger)
	if err != nil {
		logOff(service, logger)
		return err
	}
	logger.WithField("addr", server.Addr()).Info("Control server listening")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving account %s on %s\n", accountID, server.Addr())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = service.Run(runCtx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case <-client.Done():
		serveErr = errBridgeGone
	case err, ok := <-server.Err():
		if ok {
			serveErr = fmt.Errorf("control server: %w", err)
		}
	}

	cancel()
	<-runDone

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Control server shutdown failed")
	}

	if !errors.Is(serveErr, errBridgeGone) {
		logOff(service, logger)
	}

	return serveErr
}

func logOff(service *application.Service, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := service.Logout(ctx); err != nil {
		logger.WithError(err).Warn("Log off failed")
	}
}
