package credentials

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memguard wipes the input slice, so every provider gets a fresh copy
func testKeyProvider(t *testing.T) *EnclaveKeyProvider {
	t.Helper()
	provider, err := NewEnclaveKeyProvider(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return provider
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keys := testKeyProvider(t)

	encrypted, err := Encrypt(keys, "super-secret-client-secret")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "super-secret")

	decrypted, err := Decrypt(keys, encrypted)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-client-secret", decrypted)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	keys := testKeyProvider(t)

	first, err := Encrypt(keys, "same plaintext")
	require.NoError(t, err)
	second, err := Encrypt(keys, "same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptWrongKey(t *testing.T) {
	encrypted, err := Encrypt(testKeyProvider(t), "secret")
	require.NoError(t, err)

	otherKeys, err := NewEnclaveKeyProvider(bytes.Repeat([]byte{0x99}, 32))
	require.NoError(t, err)

	_, err = Decrypt(otherKeys, encrypted)
	require.Error(t, err)
}

func TestDecryptMalformedInput(t *testing.T) {
	keys := testKeyProvider(t)

	_, err := Decrypt(keys, "not hex!")
	require.Error(t, err)

	// Valid hex but shorter than a GCM nonce
	_, err = Decrypt(keys, "abcd")
	require.Error(t, err)
}

func TestKeyProviderValidation(t *testing.T) {
	_, err := NewEnclaveKeyProvider([]byte("too short"))
	require.Error(t, err)

	_, err = NewEnclaveKeyProviderHex("")
	require.Error(t, err)

	_, err = NewEnclaveKeyProviderHex("zz")
	require.Error(t, err)

	provider, err := NewEnclaveKeyProviderHex(hex.EncodeToString(bytes.Repeat([]byte{0x01}, 32)))
	require.NoError(t, err)

	key, err := provider.Key()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
