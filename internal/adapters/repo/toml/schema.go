package toml

import (
	"fmt"

	"github.com/bnema/steam-accounts-cli/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	ID        string     `toml:"id"`
	Name      string     `toml:"name"`
	LoginName string     `toml:"login_name"`
	Auth      authSchema `toml:"auth"`
}

type authSchema struct {
	PasswordRef     string `toml:"password_ref,omitempty"`
	SharedSecretRef string `toml:"shared_secret_ref,omitempty"`
}

func toSchema(account domain.Account) accountSchema {
	return accountSchema{
		ID:        string(account.ID),
		Name:      account.Name,
		LoginName: account.LoginName,
		Auth: authSchema{
			PasswordRef:     account.Auth.PasswordRef,
			SharedSecretRef: account.Auth.SharedSecretRef,
		},
	}
}

// fromSchema falls back to the display name for entries written without a
// login name.
func fromSchema(entry accountSchema) domain.Account {
	loginName := entry.LoginName
	if loginName == "" {
		loginName = entry.Name
	}

	return domain.Account{
		ID:        domain.AccountID(entry.ID),
		Name:      entry.Name,
		LoginName: loginName,
		Auth: domain.Auth{
			PasswordRef:     entry.Auth.PasswordRef,
			SharedSecretRef: entry.Auth.SharedSecretRef,
		},
	}
}
