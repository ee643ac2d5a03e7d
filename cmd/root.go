package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sa",
		Short:         "Steam Accounts CLI (sa): keep a bot account online and manage its friends",
		Long:          "sa (Steam Accounts CLI) stores account credentials, keeps one account logged on through the platform bridge, auto-accepts friend requests, and exposes the session on a local control plane.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", defaultLogLevel, "Log level (trace|debug|info|warn|error)")
	flags.String("log-format", defaultLogFormat, "Log format (text|json)")
	flags.String("addr", "", "Control-plane address (default from control.listen)")
	_ = app.config.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = app.config.BindPFlag(keyLogFormat, flags.Lookup("log-format"))
	_ = app.config.BindPFlag(keyControlListen, flags.Lookup("addr"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return configureLogger(app.logger, app.config.GetString(keyLogLevel), app.config.GetString(keyLogFormat), cmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newAuthCmd(app),
		newCodeCmd(app),
		newServeCmd(app),
		newStatusCmd(app),
		newAcceptCmd(app),
		newFriendCmd(app),
		newSendCmd(app),
	)

	return rootCmd
}
