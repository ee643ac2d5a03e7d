package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
)

var ErrUnsupportedSecretKind = errors.New("unsupported secret kind")

// Accounts manages account configuration and the secrets it references.
type Accounts struct {
	repo  ports.AccountRepository
	store ports.SecretStore
}

func NewAccounts(repo ports.AccountRepository, store ports.SecretStore) *Accounts {
	return &Accounts{repo: repo, store: store}
}

func (a *Accounts) Add(ctx context.Context, cmd AddAccountCommand) error {
	if strings.TrimSpace(string(cmd.ID)) == "" {
		return errors.New("account id is required")
	}
	if strings.TrimSpace(cmd.LoginName) == "" {
		return errors.New("login name is required")
	}

	account, err := a.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("get account by id: %w", err)
		}
		account = domain.Account{ID: cmd.ID}
	}

	account.LoginName = strings.TrimSpace(cmd.LoginName)
	account.Name = strings.TrimSpace(cmd.Name)
	if account.Name == "" {
		account.Name = account.LoginName
	}

	if err := a.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	return nil
}

func (a *Accounts) List(ctx context.Context) ([]domain.Account, error) {
	accounts, err := a.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// SetSecret stores the secret and points the account at it. A previous
// secret under another key is deleted once the account is saved.
func (a *Accounts) SetSecret(ctx context.Context, cmd SetSecretCommand) error {
	if !cmd.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedSecretKind, cmd.Kind)
	}
	if cmd.Value == "" {
		return errors.New("secret value is required")
	}

	account, err := a.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	original := account

	previousRef := account.Auth.Ref(cmd.Kind)
	secretKey := domain.SecretKey(cmd.ID, cmd.Kind)

	if err := a.store.Put(ctx, secretKey, cmd.Value); err != nil {
		return fmt.Errorf("store %s: %w", cmd.Kind, err)
	}

	account.Auth.SetRef(cmd.Kind, secretKey)
	if err := a.repo.Save(ctx, account); err != nil {
		if previousRef == secretKey {
			return fmt.Errorf("save account auth: %w", err)
		}
		if rollbackErr := a.store.Delete(ctx, secretKey); rollbackErr != nil {
			return fmt.Errorf("save account auth and rollback stored secret: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save account auth: %w", err)
	}

	if previousRef == "" || previousRef == secretKey {
		return nil
	}

	if err := a.store.Delete(ctx, previousRef); err != nil {
		var rollbackErr error
		if restoreErr := a.repo.Save(ctx, original); restoreErr != nil {
			rollbackErr = errors.Join(rollbackErr, restoreErr)
		}
		if newSecretDeleteErr := a.store.Delete(ctx, secretKey); newSecretDeleteErr != nil {
			rollbackErr = errors.Join(rollbackErr, newSecretDeleteErr)
		}
		if rollbackErr != nil {
			return fmt.Errorf("delete previous %s and rollback: %w", cmd.Kind, errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("delete previous %s: %w", cmd.Kind, err)
	}

	return nil
}

func (a *Accounts) RemoveSecret(ctx context.Context, cmd RemoveSecretCommand) error {
	if !cmd.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedSecretKind, cmd.Kind)
	}

	account, err := a.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}

	ref := account.Auth.Ref(cmd.Kind)
	if ref == "" {
		return nil
	}

	account.Auth.SetRef(cmd.Kind, "")
	if err := a.repo.Save(ctx, account); err != nil {
		return fmt.Errorf("save account auth: %w", err)
	}

	if err := a.store.Delete(ctx, ref); err != nil {
		account.Auth.SetRef(cmd.Kind, ref)
		if restoreErr := a.repo.Save(ctx, account); restoreErr != nil {
			return fmt.Errorf("delete %s and restore ref: %w", cmd.Kind, errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete %s: %w", cmd.Kind, err)
	}

	return nil
}

// Credentials resolves the logon credentials of an account. The password is
// required; the shared secret is optional.
func (a *Accounts) Credentials(ctx context.Context, id domain.AccountID) (domain.Credentials, error) {
	account, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("get account by id: %w", err)
	}

	if account.Auth.PasswordRef == "" {
		return domain.Credentials{}, fmt.Errorf("account %s password: %w", id, domain.ErrSecretNotFound)
	}

	password, err := a.store.Get(ctx, account.Auth.PasswordRef)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("load account %s password: %w", id, err)
	}

	credentials := domain.Credentials{
		AccountName: account.LoginName,
		Password:    password,
	}

	if account.Auth.SharedSecretRef != "" {
		sharedSecret, err := a.store.Get(ctx, account.Auth.SharedSecretRef)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("load account %s shared secret: %w", id, err)
		}
		credentials.SharedSecret = sharedSecret
	}

	return credentials, nil
}
