package ports

import "context"

// SecretStore keys use the "steam://<account>/<kind>" scheme.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
