package secret

import (
	"context"
	"fmt"
	"path/filepath"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
)

const (
	vaultSecretsName = "wallet-secrets"
	vaultValueKey    = "value"
)

// logicaler is the part of the vault client the store needs
type logicaler interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]any) (*vault.Secret, error)
	DeleteWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultStore keeps secrets in a HashiCorp Vault KV engine
type VaultStore struct {
	client     logicaler
	pathPrefix string
}

func NewVaultStore(ctx context.Context, cfg config.VaultConfig) (*VaultStore, error) {
	client, err := configureVaultClient(cfg)
	if err != nil {
		return nil, err
	}
	return newVaultStoreWithClient(ctx, client.Logical(), cfg.PathPrefix)
}

func newVaultStoreWithClient(ctx context.Context, client logicaler, pathPrefix string) (*VaultStore, error) {
	store := &VaultStore{client: client, pathPrefix: pathPrefix}
	if err := store.checkConnection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func configureVaultClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Timeout = cfg.Timeout
	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.Wrap(err, "initializing vault client")
	}
	// vault.NewClient picks up VAULT_TOKEN and VAULT_ADDR, configured values take precedence
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Address != "" {
		if err = client.SetAddress(cfg.Address); err != nil {
			return nil, errors.Wrap(err, "vault address invalid")
		}
	}
	return client, nil
}

func (v *VaultStore) checkConnection(ctx context.Context) error {
	// the token lookup tells whether the token is valid and vault is reachable
	secret, err := v.client.ReadWithContext(ctx, "auth/token/lookup-self")
	if err != nil {
		return errors.Wrap(err, "vault connection check failed")
	}
	if secret == nil || len(secret.Data) == 0 {
		return errors.New("could not read token information on auth/token/lookup-self")
	}
	logrus.Debug("connected to vault")
	return nil
}

func (v *VaultStore) path(key string) string {
	return filepath.Clean(fmt.Sprintf("%s/%s/%s", v.pathPrefix, vaultSecretsName, filepath.Base(key)))
}

func (v *VaultStore) Type() framework.Type {
	return framework.Secret
}

func (v *VaultStore) Status() framework.Status {
	if err := v.checkConnection(context.Background()); err != nil {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("vault secret store is not ready: %s", err.Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (v *VaultStore) SaveSecret(ctx context.Context, key, value string) error {
	if key == "" {
		return sdkutil.LoggingNewError("could not store secret without a key")
	}
	if _, err := v.client.WriteWithContext(ctx, v.path(key), map[string]any{vaultValueKey: value}); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not store secret in vault: %s", key)
	}
	return nil
}

func (v *VaultStore) GetSecretByKey(ctx context.Context, key string) (string, error) {
	result, err := v.client.ReadWithContext(ctx, v.path(key))
	if err != nil {
		return "", sdkutil.LoggingErrorMsgf(err, "could not read secret from vault: %s", key)
	}
	if result == nil || result.Data == nil {
		return "", framework.NewErrorf(framework.NotFound, "secret %s not found", key)
	}
	value, ok := result.Data[vaultValueKey].(string)
	if !ok {
		return "", framework.NewErrorf(framework.Deserialization, "secret %s has no string value", key)
	}
	return value, nil
}

func (v *VaultStore) DeleteSecretByKey(ctx context.Context, key string) error {
	if _, err := v.client.DeleteWithContext(ctx, v.path(key)); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not delete secret from vault: %s", key)
	}
	return nil
}

var _ Store = (*VaultStore)(nil)
