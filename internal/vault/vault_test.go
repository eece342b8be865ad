package vault

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, seed byte) string {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed
	}
	return hex.EncodeToString(key)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	v, err := New(testKey(t, 1))
	require.NoError(t, err)

	ciphertext, err := v.Seal([]byte(`{"username":"alice","password":"s3cret"}`))
	require.NoError(t, err)

	plaintext, err := v.Open(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, `{"username":"alice","password":"s3cret"}`, string(plaintext))
}

func TestOpen_TamperedCiphertextFails(t *testing.T) {
	v, err := New(testKey(t, 1))
	require.NoError(t, err)

	ciphertext, err := v.Seal([]byte("top secret"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = v.Open(ciphertext)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	v1, err := New(testKey(t, 1))
	require.NoError(t, err)
	v2, err := New(testKey(t, 2))
	require.NoError(t, err)

	ciphertext, err := v1.Seal([]byte("top secret"))
	require.NoError(t, err)

	_, err = v2.Open(ciphertext)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestNew_MissingKeyFails(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrKeyMissing)
}

func TestRotate_ReencryptsUnderNewKey(t *testing.T) {
	v1, err := New(testKey(t, 1))
	require.NoError(t, err)

	ciphertext, err := v1.Seal([]byte("top secret"))
	require.NoError(t, err)

	newKey := testKey(t, 9)
	rotated, err := v1.Rotate(ciphertext, newKey)
	require.NoError(t, err)

	v2, err := New(newKey)
	require.NoError(t, err)
	plaintext, err := v2.Open(rotated)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plaintext))

	_, err = v1.Open(rotated)
	assert.ErrorIs(t, err, ErrTampered)
}
