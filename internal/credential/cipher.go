// Package credential encrypts the mailbox passwords stored on campaigns and
// submissions. Ciphertexts are Fernet tokens keyed from the server secret.
package credential

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Marker is the textual prefix every Fernet token starts with.
	Marker = "gAAAAA"

	// Unavailable is shown in place of a credential that cannot be decrypted.
	Unavailable = "unavailable"

	kdfIterations = 100000
	saltLength    = 16
)

var (
	ErrDecryptionUnavailable = errors.New("credential could not be decrypted")
	ErrWeakSecret            = fmt.Errorf("secret must be at least %d characters", saltLength)
)

// Cipher holds the key derived once from the server secret.
type Cipher struct {
	key *fernet.Key
}

// NewCipher derives the Fernet key with PBKDF2-HMAC-SHA256 using the first
// 16 bytes of the secret as salt.
func NewCipher(secret string) (*Cipher, error) {
	if len(secret) < saltLength {
		return nil, ErrWeakSecret
	}
	derived := pbkdf2.Key([]byte(secret), []byte(secret[:saltLength]), kdfIterations, 32, sha256.New)

	var k fernet.Key
	copy(k[:], derived)
	return &Cipher{key: &k}, nil
}

// Encrypt always produces a fresh token, even for input that is already one.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	return string(tok), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	// Negative TTL: stored credentials never expire.
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), -1, []*fernet.Key{c.key})
	if msg == nil {
		return "", ErrDecryptionUnavailable
	}
	return string(msg), nil
}

// Store prepares a value for persistence. Empty stays empty and values that
// already carry the token marker are kept as-is, so re-saving is idempotent.
func (c *Cipher) Store(value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}
	return c.Encrypt(value)
}

// Display decrypts for presentation, returning Unavailable instead of an error.
func (c *Cipher) Display(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		return Unavailable
	}
	return plain
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Marker)
}
