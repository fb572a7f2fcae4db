// internal/common/pii/cipher_test.go
package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.EncryptString("jane.doe@example.org")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "jane.doe")

	again, err := c.EncryptString("jane.doe@example.org")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.org", string(plain))
}

func TestCipher_EmptyIsNil(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt(nil)
	require.NoError(t, err)
	assert.Nil(t, sealed)

	plain, err := c.Decrypt(nil)
	require.NoError(t, err)
	assert.Nil(t, plain)
}

func TestCipher_Errors(t *testing.T) {
	_, err := NewCipher("abcd")
	assert.Error(t, err)

	_, err = NewCipher(strings.Repeat("z", 64))
	assert.Error(t, err)

	c, err := NewCipher(testKey)
	require.NoError(t, err)

	_, err = c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	sealed, err := c.EncryptString("payload")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Decrypt(sealed)
	assert.Error(t, err)
}
