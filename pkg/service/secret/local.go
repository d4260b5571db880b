package secret

import (
	"context"
	"crypto/rand"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/tbd54566975/wallet-service/config"
	"github.com/tbd54566975/wallet-service/internal/encryption"
	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/service/framework"
	"github.com/tbd54566975/wallet-service/pkg/storage"
)

const (
	namespace      = "secret"
	skNamespace    = "secret-service-key"
	skKey          = "wallet-service-key"
	defaultKeySize = util.ServiceKeySize
)

// ServiceKey is the persisted form of the key encrypting every local secret. Base58Key is only set when the key
// itself is wrapped by an external KMS; otherwise the key is derived from the configured password and the salt.
type ServiceKey struct {
	Base58Key  string `json:"key,omitempty"`
	Base58Salt string `json:"salt,omitempty"`
}

// LocalStore keeps secrets in the configured storage engine, encrypted with the service key
type LocalStore struct {
	db storage.ServiceStorage
}

func NewLocalStore(ctx context.Context, cfg config.SecretServiceConfig, db storage.ServiceStorage) (*LocalStore, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	serviceKey, err := loadServiceKey(ctx, cfg, db)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not load service key")
	}
	encrypter := encryption.NewXChaCha20Poly1305EncrypterWithKey(serviceKey)
	return &LocalStore{db: storage.NewEncryptedWrapper(db, encrypter, encrypter)}, nil
}

// loadServiceKey creates the service key on first use and reads it back, so concurrent first starts agree on one key
func loadServiceKey(ctx context.Context, cfg config.SecretServiceConfig, db storage.ServiceStorage) ([]byte, error) {
	if cfg.EncryptionEnabled() {
		encrypter, decrypter, err := encryption.NewExternalEncrypter(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "creating external encrypter")
		}
		wrapped := storage.NewEncryptedWrapper(db, encrypter, decrypter)
		stored, err := readOrCreate(ctx, wrapped, func() (*ServiceKey, error) {
			key := make([]byte, defaultKeySize)
			if _, err = rand.Read(key); err != nil {
				return nil, err
			}
			return &ServiceKey{Base58Key: base58.Encode(key)}, nil
		})
		if err != nil {
			return nil, err
		}
		if stored.Base58Key == "" {
			return nil, errors.New("stored service key was not created with an external key")
		}
		return base58.Decode(stored.Base58Key)
	}

	if cfg.ServiceKeyPassword == "" {
		return nil, errors.New("a service key password is required without a master key uri")
	}
	stored, err := readOrCreate(ctx, db, func() (*ServiceKey, error) {
		salt, err := util.GenerateSalt(util.Argon2SaltSize)
		if err != nil {
			return nil, err
		}
		return &ServiceKey{Base58Salt: base58.Encode(salt)}, nil
	})
	if err != nil {
		return nil, err
	}
	salt, err := base58.Decode(stored.Base58Salt)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode service key salt")
	}
	return util.Argon2KeyGen(cfg.ServiceKeyPassword, salt, defaultKeySize)
}

func readOrCreate(ctx context.Context, db storage.ServiceStorage, create func() (*ServiceKey, error)) (*ServiceKey, error) {
	candidate, err := create()
	if err != nil {
		return nil, errors.Wrap(err, "generating service key")
	}
	candidateBytes, err := json.Marshal(candidate)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling service key")
	}
	if _, err = db.WriteIfAbsent(ctx, skNamespace, skKey, candidateBytes); err != nil {
		return nil, errors.Wrap(err, "storing service key")
	}
	storedBytes, err := db.Read(ctx, skNamespace, skKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading service key")
	}
	if storedBytes == nil {
		return nil, errors.New("service key vanished after it was stored")
	}
	var stored ServiceKey
	if err = json.Unmarshal(storedBytes, &stored); err != nil {
		return nil, errors.Wrap(err, "unmarshalling service key")
	}
	return &stored, nil
}

func (s *LocalStore) Type() framework.Type {
	return framework.Secret
}

func (s *LocalStore) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.db == nil {
		ae.AppendString("no storage configured")
	} else if !s.db.IsOpen() {
		ae.AppendString(fmt.Sprintf("%s storage is not reachable", s.db.Type()))
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("local secret store is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *LocalStore) SaveSecret(ctx context.Context, key, value string) error {
	if key == "" {
		return sdkutil.LoggingNewError("could not store secret without a key")
	}
	if err := s.db.Write(ctx, namespace, key, []byte(value)); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not store secret: %s", key)
	}
	return nil
}

func (s *LocalStore) GetSecretByKey(ctx context.Context, key string) (string, error) {
	value, err := s.db.Read(ctx, namespace, key)
	if err != nil {
		return "", sdkutil.LoggingErrorMsgf(err, "could not get secret: %s", key)
	}
	if value == nil {
		return "", framework.NewErrorf(framework.NotFound, "secret %s not found", key)
	}
	return string(value), nil
}

func (s *LocalStore) DeleteSecretByKey(ctx context.Context, key string) error {
	if err := s.db.Delete(ctx, namespace, key); err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not delete secret: %s", key)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
