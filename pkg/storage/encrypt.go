package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/internal/encryption"
)

// EncryptedWrapper seals values before they reach the wrapped storage. Namespaces and keys stay in the clear so
// lookups and listings keep working.
type EncryptedWrapper struct {
	ServiceStorage
	encrypter encryption.Encrypter
	decrypter encryption.Decrypter
}

func NewEncryptedWrapper(s ServiceStorage, encrypter encryption.Encrypter, decrypter encryption.Decrypter) *EncryptedWrapper {
	return &EncryptedWrapper{ServiceStorage: s, encrypter: encrypter, decrypter: decrypter}
}

func (e EncryptedWrapper) seal(ctx context.Context, value []byte) ([]byte, error) {
	sealed, err := e.encrypter.Encrypt(ctx, value, nil)
	if err != nil {
		return nil, errors.Wrap(err, "encrypting data")
	}
	return sealed, nil
}

func (e EncryptedWrapper) open(ctx context.Context, sealed []byte) ([]byte, error) {
	value, err := e.decrypter.Decrypt(ctx, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting data")
	}
	return value, nil
}

func (e EncryptedWrapper) Write(ctx context.Context, namespace, key string, value []byte) error {
	sealed, err := e.seal(ctx, value)
	if err != nil {
		return err
	}
	return e.ServiceStorage.Write(ctx, namespace, key, sealed)
}

func (e EncryptedWrapper) WriteIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error) {
	sealed, err := e.seal(ctx, value)
	if err != nil {
		return false, err
	}
	return e.ServiceStorage.WriteIfAbsent(ctx, namespace, key, sealed)
}

// Read returns nil without error for a missing key, like the wrapped storage
func (e EncryptedWrapper) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	sealed, err := e.ServiceStorage.Read(ctx, namespace, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	return e.open(ctx, sealed)
}

func (e EncryptedWrapper) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	stored, err := e.ServiceStorage.ReadAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	values := make(map[string][]byte, len(stored))
	for key, sealed := range stored {
		if values[key], err = e.open(ctx, sealed); err != nil {
			return nil, errors.Wrapf(err, "value of %s", key)
		}
	}
	return values, nil
}

var _ ServiceStorage = (*EncryptedWrapper)(nil)
