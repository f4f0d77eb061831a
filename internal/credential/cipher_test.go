package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "insecure-dev-key-0123456789abcdef"

func newTestCipher(t *testing.T, secret string) *Cipher {
	t.Helper()
	c, err := NewCipher(secret)
	require.NoError(t, err)
	return c
}

func TestNewCipher_RejectsShortSecret(t *testing.T) {
	_, err := NewCipher("too-short")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCipher(t, testSecret)

	for _, plain := range []string{"hunter2", "", "pässwörd with spaces", Marker + "looks-encrypted"} {
		tok, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(tok), "token should carry the marker")

		got, err := c.Decrypt(tok)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEncrypt_NotIdempotent(t *testing.T) {
	c := newTestCipher(t, testSecret)

	once, err := c.Encrypt("secret")
	require.NoError(t, err)
	twice, err := c.Encrypt(once)
	require.NoError(t, err)

	assert.NotEqual(t, once, twice)
	inner, err := c.Decrypt(twice)
	require.NoError(t, err)
	assert.Equal(t, once, inner)
}

func TestStore(t *testing.T) {
	c := newTestCipher(t, testSecret)

	empty, err := c.Store("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	stored, err := c.Store("mailbox-password")
	require.NoError(t, err)
	require.True(t, IsEncrypted(stored))

	again, err := c.Store(stored)
	require.NoError(t, err)
	assert.Equal(t, stored, again, "storing an encrypted value must not re-encrypt it")
	assert.Equal(t, "mailbox-password", c.Display(again))
}

func TestDecrypt_WrongKey(t *testing.T) {
	a := newTestCipher(t, testSecret)
	b := newTestCipher(t, "another-secret-that-is-long-enough")

	tok, err := a.Encrypt("mailbox-password")
	require.NoError(t, err)

	_, err = b.Decrypt(tok)
	assert.ErrorIs(t, err, ErrDecryptionUnavailable)
	assert.Equal(t, Unavailable, b.Display(tok))
}

func TestDecrypt_Garbage(t *testing.T) {
	c := newTestCipher(t, testSecret)

	_, err := c.Decrypt("plain-text-password")
	assert.ErrorIs(t, err, ErrDecryptionUnavailable)
	assert.Equal(t, Unavailable, c.Display("gAAAAAtruncated"))
	assert.Empty(t, c.Display(""))
}

func TestNewCipher_Deterministic(t *testing.T) {
	a := newTestCipher(t, testSecret)
	b := newTestCipher(t, testSecret)

	tok, err := a.Encrypt("shared")
	require.NoError(t, err)
	got, err := b.Decrypt(tok)
	require.NoError(t, err)
	assert.Equal(t, "shared", got)
}
