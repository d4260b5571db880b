package encryption

import (
	"context"
	"strings"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/core/registry"
	"github.com/google/tink/go/integration/awskms"
	"github.com/google/tink/go/integration/gcpkms"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/tbd54566975/wallet-service/internal/util"
)

// Encrypter the interface for any encrypter implementation.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext, contextData []byte) ([]byte, error)
}

// Decrypter is the interface for any decrypter. The second parameter is treated as associated data.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext, contextInfo []byte) ([]byte, error)
}

type KeyResolver func(ctx context.Context) ([]byte, error)

// XChaCha20Poly1305Encrypter encrypts and decrypts with a symmetric key obtained from a KeyResolver
type XChaCha20Poly1305Encrypter struct {
	keyResolver KeyResolver
}

func NewXChaCha20Poly1305EncrypterWithKey(key []byte) *XChaCha20Poly1305Encrypter {
	return &XChaCha20Poly1305Encrypter{func(ctx context.Context) ([]byte, error) {
		return key, nil
	}}
}

func NewXChaCha20Poly1305EncrypterWithKeyResolver(resolver KeyResolver) *XChaCha20Poly1305Encrypter {
	return &XChaCha20Poly1305Encrypter{resolver}
}

func (k XChaCha20Poly1305Encrypter) Encrypt(ctx context.Context, plaintext, _ []byte) ([]byte, error) {
	key, err := k.keyResolver(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving key")
	}
	encrypted, err := util.XChaCha20Poly1305Encrypt(key, plaintext)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not encrypt value")
	}
	return encrypted, nil
}

func (k XChaCha20Poly1305Encrypter) Decrypt(ctx context.Context, ciphertext, _ []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}
	key, err := k.keyResolver(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving key")
	}
	decrypted, err := util.XChaCha20Poly1305Decrypt(key, ciphertext)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not decrypt value")
	}
	return decrypted, nil
}

var _ Decrypter = (*XChaCha20Poly1305Encrypter)(nil)
var _ Encrypter = (*XChaCha20Poly1305Encrypter)(nil)

type noopDecrypter struct{}

func (n noopDecrypter) Decrypt(_ context.Context, ciphertext, _ []byte) ([]byte, error) {
	return ciphertext, nil
}

type noopEncrypter struct{}

func (n noopEncrypter) Encrypt(_ context.Context, plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

var (
	NoopDecrypter Decrypter = noopDecrypter{}
	NoopEncrypter Encrypter = noopEncrypter{}
)

type wrappedAEAD struct {
	tink.AEAD
}

func (w wrappedAEAD) Encrypt(_ context.Context, plaintext, contextData []byte) ([]byte, error) {
	return w.AEAD.Encrypt(plaintext, contextData)
}

func (w wrappedAEAD) Decrypt(_ context.Context, ciphertext, contextInfo []byte) ([]byte, error) {
	return w.AEAD.Decrypt(ciphertext, contextInfo)
}

const (
	gcpKMSScheme = "gcp-kms"
	awsKMSScheme = "aws-kms"
)

// ExternalEncryptionConfig describes a master key held by a cloud KMS
type ExternalEncryptionConfig interface {
	GetMasterKeyURI() string
	GetKMSCredentialsPath() string
	EncryptionEnabled() bool
}

// NewExternalEncrypter returns an envelope AEAD backed by the configured KMS master key, or no-op
// implementations when external encryption is disabled.
func NewExternalEncrypter(ctx context.Context, cfg ExternalEncryptionConfig) (Encrypter, Decrypter, error) {
	if !cfg.EncryptionEnabled() {
		return NoopEncrypter, NoopDecrypter, nil
	}
	var client registry.KMSClient
	var err error
	switch {
	case strings.HasPrefix(cfg.GetMasterKeyURI(), gcpKMSScheme):
		client, err = gcpkms.NewClientWithOptions(ctx, cfg.GetMasterKeyURI(), option.WithCredentialsFile(cfg.GetKMSCredentialsPath()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating gcp kms client")
		}
	case strings.HasPrefix(cfg.GetMasterKeyURI(), awsKMSScheme):
		client, err = awskms.NewClientWithCredentials(cfg.GetMasterKeyURI(), cfg.GetKMSCredentialsPath())
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating aws kms client")
		}
	default:
		return nil, nil, errors.Errorf("master_key_uri value %q is not supported", cfg.GetMasterKeyURI())
	}
	registry.RegisterKMSClient(client)
	dek := aead.AES256GCMKeyTemplate()
	kh, err := keyset.NewHandle(aead.KMSEnvelopeAEADKeyTemplate(cfg.GetMasterKeyURI(), dek))
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating keyset handle")
	}
	a, err := aead.New(kh)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating aead from key handle")
	}
	w := wrappedAEAD{a}
	return w, w, nil
}
