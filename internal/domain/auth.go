package domain

import (
	"fmt"
	"strings"
)

type SecretKind string

const (
	SecretKindPassword     SecretKind = "password"
	SecretKindSharedSecret SecretKind = "shared_secret"
)

func (k SecretKind) Valid() bool {
	switch k {
	case SecretKindPassword, SecretKindSharedSecret:
		return true
	default:
		return false
	}
}

type Auth struct {
	// PasswordRef and SharedSecretRef point to secret-store entries in
	// "steam://<account>/<kind>" form.
	PasswordRef     string
	SharedSecretRef string
}

func (a Auth) Ref(kind SecretKind) string {
	switch kind {
	case SecretKindPassword:
		return a.PasswordRef
	case SecretKindSharedSecret:
		return a.SharedSecretRef
	default:
		return ""
	}
}

func (a *Auth) SetRef(kind SecretKind, ref string) {
	switch kind {
	case SecretKindPassword:
		a.PasswordRef = ref
	case SecretKindSharedSecret:
		a.SharedSecretRef = ref
	}
}

const secretKeyScheme = "steam://"

func SecretKey(id AccountID, kind SecretKind) string {
	return fmt.Sprintf("%s%s/%s", secretKeyScheme, id, kind)
}

// SecretPath maps a secret key to the relative "<account>/<kind>" path the
// secret backends store it under.
func SecretPath(key string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(key), secretKeyScheme)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSecretKey, key)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSecretKey, key)
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `\:`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidSecretKey, key)
		}
	}

	return rest, nil
}

// Credentials are resolved once at process start and never change for the
// lifetime of a session.
type Credentials struct {
	AccountName  string
	Password     string
	SharedSecret string
}

func (c Credentials) HasSharedSecret() bool {
	return c.SharedSecret != ""
}
