package secret

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/storage"
)

// Provider is where private key material is kept. It is resolved once at startup from configuration.
type Provider string

const (
	Local          Provider = "local"
	HashiCorpVault Provider = "vault"
)

func (p Provider) String() string {
	return string(p)
}

func ParseProvider(provider string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(provider))); p {
	case Local, HashiCorpVault:
		return p, nil
	}
	return "", fmt.Errorf("unsupported secret provider: %q", provider)
}

// Store keeps secrets, in practice private JWKs keyed by the DID they control
type Store interface {
	framework.Service

	SaveSecret(ctx context.Context, key, value string) error
	// GetSecretByKey returns a NotFound error when nothing is stored under the key
	GetSecretByKey(ctx context.Context, key string) (string, error)
	DeleteSecretByKey(ctx context.Context, key string) error
}

// NewSecretStore creates the store for the configured provider. The storage engine backs the local provider only.
func NewSecretStore(ctx context.Context, cfg config.SecretServiceConfig, db storage.ServiceStorage) (Store, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	switch provider {
	case Local:
		return NewLocalStore(ctx, cfg, db)
	case HashiCorpVault:
		return NewVaultStore(ctx, cfg.Vault)
	}
	return nil, fmt.Errorf("unsupported secret provider: %q", provider)
}
