package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/adapters/httpapi"
	tomlrepo "github.com/bnema/steam-accounts-cli/internal/adapters/repo/toml"
	chainstore "github.com/bnema/steam-accounts-cli/internal/adapters/secrets/chain"
	filestore "github.com/bnema/steam-accounts-cli/internal/adapters/secrets/file"
	passstore "github.com/bnema/steam-accounts-cli/internal/adapters/secrets/pass"
	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "SA"
	configName       = "config"
	configType       = "toml"
	configPathEnv    = "SA_CONFIG"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	keyControlListen     = "control.listen"
	keyPlatformSocket    = "platform.socket"
	keyDataRoot          = "data.root"
	keySecretsBackend    = "secrets.backend"
	keySecretsDir        = "secrets.dir"
	keySecretsPassPrefix = "secrets.pass_prefix"
	keyLoginTimeout      = "session.login_timeout"
	keySettleDelay       = "session.settle_delay"
	keyRescanInterval    = "session.rescan_interval"
	keyActivityAppID     = "session.activity_app_id"
	keyLogLevel          = "log.level"
	keyLogFormat         = "log.format"
)

const (
	secretsBackendChain = "chain"
	secretsBackendFile  = "file"
	secretsBackendPass  = "pass"
)

type app struct {
	config   *viper.Viper
	accounts *application.Accounts
	logger   *logrus.Logger
	clock    ports.Clock
}

func wireApp() (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	repo, err := tomlrepo.NewRepository(config)
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}

	secretStore, err := wireSecretStore(config)
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	logger := logrus.New()
	if err := configureLogger(logger, config.GetString(keyLogLevel), config.GetString(keyLogFormat), os.Stderr); err != nil {
		return nil, err
	}

	return &app{
		config:   config,
		accounts: application.NewAccounts(repo, secretStore),
		logger:   logger,
		clock:    ports.SystemClock{},
	}, nil
}

// loadConfig reads ~/.sa/config.toml when present. SA_CONFIG points at
// another file; SA_* variables override single keys.
func loadConfig() (*viper.Viper, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, tomlrepo.ConfigDir)

	config := viper.New()
	config.SetDefault(tomlrepo.AccountsPathKey, filepath.Join(configDir, "accounts.toml"))
	config.SetDefault(keyControlListen, httpapi.DefaultListenAddr)
	config.SetDefault(keyPlatformSocket, filepath.Join(configDir, "bridge.sock"))
	config.SetDefault(keyDataRoot, filepath.Join(configDir, "data"))
	config.SetDefault(keySecretsBackend, secretsBackendChain)
	config.SetDefault(keySecretsDir, filepath.Join(configDir, "secrets"))
	config.SetDefault(keySecretsPassPrefix, passstore.DefaultPrefix)
	config.SetDefault(keyLoginTimeout, application.DefaultLoginTimeout)
	config.SetDefault(keySettleDelay, application.DefaultSettleDelay)
	config.SetDefault(keyRescanInterval, application.DefaultRescanInterval)
	config.SetDefault(keyActivityAppID, application.DefaultActivityAppID)
	config.SetDefault(keyLogLevel, defaultLogLevel)
	config.SetDefault(keyLogFormat, defaultLogFormat)

	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if path := os.Getenv(configPathEnv); path != "" {
		config.SetConfigFile(path)
	} else {
		config.SetConfigName(configName)
		config.SetConfigType(configType)
		config.AddConfigPath(configDir)
	}

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return config, nil
}

func wireSecretStore(config *viper.Viper) (ports.SecretStore, error) {
	dir := config.GetString(keySecretsDir)
	prefix := config.GetString(keySecretsPassPrefix)

	switch backend := config.GetString(keySecretsBackend); backend {
	case secretsBackendChain:
		store, err := chainstore.NewPassFirstWithFileFallback(prefix, dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case secretsBackendFile:
		return filestore.NewStore(dir), nil
	case secretsBackendPass:
		return passstore.NewStore(prefix), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend %q", backend)
	}
}

func configureLogger(logger *logrus.Logger, level string, format string, out io.Writer) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}

	logger.SetLevel(parsed)
	logger.SetOutput(out)
	return nil
}

func sessionConfig(config *viper.Viper) application.SessionConfig {
	return application.SessionConfig{
		LoginTimeout:   config.GetDuration(keyLoginTimeout),
		SettleDelay:    config.GetDuration(keySettleDelay),
		RescanInterval: config.GetDuration(keyRescanInterval),
		ActivityAppID:  config.GetUint32(keyActivityAppID),
	}
}
