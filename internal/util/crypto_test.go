package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2(t *testing.T) {
	salt, err := GenerateSalt(Argon2SaltSize)
	require.NoError(t, err)
	assert.Len(t, salt, Argon2SaltSize)

	hash, err := Argon2KeyGen("test-password", salt, ServiceKeySize)
	assert.NoError(t, err)
	hash2, err := Argon2KeyGen("test-password", salt, ServiceKeySize)
	assert.NoError(t, err)
	assert.Equal(t, hash, hash2)

	_, err = Argon2KeyGen("", salt, ServiceKeySize)
	assert.Error(t, err)
	_, err = Argon2KeyGen("test-password", nil, ServiceKeySize)
	assert.Error(t, err)
}

func TestXChaCha20Poly1305(t *testing.T) {
	salt, err := GenerateSalt(Argon2SaltSize)
	require.NoError(t, err)
	key, err := Argon2KeyGen("test-password", salt, ServiceKeySize)
	require.NoError(t, err)

	message := []byte("open sesame")
	encrypted, err := XChaCha20Poly1305Encrypt(key, message)
	assert.NoError(t, err)
	assert.NotEqual(t, message, encrypted)

	decrypted, err := XChaCha20Poly1305Decrypt(key, encrypted)
	assert.NoError(t, err)
	assert.Equal(t, message, decrypted)

	t.Run("tampered ciphertext", func(tt *testing.T) {
		tampered := append([]byte{}, encrypted...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := XChaCha20Poly1305Decrypt(key, tampered)
		assert.Error(tt, err)
	})

	t.Run("short ciphertext", func(tt *testing.T) {
		_, err := XChaCha20Poly1305Decrypt(key, []byte("short"))
		assert.ErrorContains(tt, err, "too short")
	})
}
