package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/awnumar/memguard"

	"github.com/teranos/offramp/errors"
)

// KeyProvider supplies the symmetric key used to encrypt client secrets at
// rest. Injected into the Resolver at construction; business logic never
// reads key material from ambient process state.
type KeyProvider interface {
	// Key returns the raw 32-byte AES key. Callers must not retain the slice.
	Key() ([]byte, error)
}

// EnclaveKeyProvider keeps the key sealed in a memguard enclave between uses.
type EnclaveKeyProvider struct {
	enclave *memguard.Enclave
}

// NewEnclaveKeyProvider seals the given key. The input slice is wiped.
func NewEnclaveKeyProvider(key []byte) (*EnclaveKeyProvider, error) {
	if len(key) != 32 {
		return nil, errors.Newf("vault key must be 32 bytes, got %d", len(key))
	}
	return &EnclaveKeyProvider{enclave: memguard.NewEnclave(key)}, nil
}

// NewEnclaveKeyProviderHex seals a hex-encoded key, as carried in configuration.
func NewEnclaveKeyProviderHex(hexKey string) (*EnclaveKeyProvider, error) {
	if hexKey == "" {
		return nil, errors.New("vault key is not configured")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "vault key is not valid hex")
	}
	return NewEnclaveKeyProvider(key)
}

// Key opens the enclave and returns a copy of the key material.
func (p *EnclaveKeyProvider) Key() ([]byte, error) {
	buf, err := p.enclave.Open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open key enclave")
	}
	defer buf.Destroy()

	key := make([]byte, len(buf.Bytes()))
	copy(key, buf.Bytes())
	return key, nil
}

// Encrypt seals plaintext with AES-GCM and returns hex(nonce || ciphertext).
func Encrypt(provider KeyProvider, plaintext string) (string, error) {
	key, err := provider.Key()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "failed to create GCM")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(provider KeyProvider, encoded string) (string, error) {
	key, err := provider.Key()
	if err != nil {
		return "", err
	}

	sealed, err := hex.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "ciphertext is not valid hex")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "failed to create GCM")
	}

	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt secret")
	}

	return string(plaintext), nil
}
