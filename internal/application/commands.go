package application

import "github.com/bnema/steam-accounts-cli/internal/domain"

type AddAccountCommand struct {
	ID        domain.AccountID
	Name      string
	LoginName string
}

type SetSecretCommand struct {
	ID    domain.AccountID
	Kind  domain.SecretKind
	Value string
}

type RemoveSecretCommand struct {
	ID   domain.AccountID
	Kind domain.SecretKind
}
