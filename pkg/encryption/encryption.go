package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gestiohq/gestio/pkg/keyring"
)

const (
	// Keyring service name for broker security material
	KeyringService = "gestio-security"
	// Keyring key holding the process-wide credential cipher secret
	CipherSecretKey = "credential-cipher-key"
)

// ErrDecryptionFailed is returned when a ciphertext is malformed or was
// produced under a different key.
var ErrDecryptionFailed = errors.New("decryption failed")

// Cipher encrypts and decrypts tenant database passwords at rest using
// AES-256-GCM keyed by a process-wide secret. Operations are pure and
// synchronous; no I/O happens after construction.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from the given secret. The AES key is derived
// from the secret with SHA-256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("cipher secret is required")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// NewCipherFromEnv creates a cipher using the GESTIO_CREDENTIAL_KEY
// environment variable, falling back to the keyring entry when unset.
// Construction fails fast when no secret is available anywhere.
func NewCipherFromEnv() (*Cipher, error) {
	if secret := os.Getenv("GESTIO_CREDENTIAL_KEY"); secret != "" {
		return NewCipher(secret)
	}

	km := keyring.NewManagerWithBackend(
		keyring.GetDefaultKeyringPath(),
		keyring.GetMasterPasswordFromEnv(),
		keyring.GetBackendFromEnv(),
	)
	secret, err := km.Get(KeyringService, CipherSecretKey)
	if err != nil {
		return nil, fmt.Errorf("credential cipher secret not found in keyring - has the node been initialized? Error: %w", err)
	}
	return NewCipher(secret)
}

// SetCipherSecret stores the credential cipher secret in the keyring.
// Used by the provisioning command when a node is initialized.
func SetCipherSecret(secret string) error {
	if secret == "" {
		return errors.New("cipher secret is required")
	}
	km := keyring.NewManagerWithBackend(
		keyring.GetDefaultKeyringPath(),
		keyring.GetMasterPasswordFromEnv(),
		keyring.GetBackendFromEnv(),
	)
	return km.Set(KeyringService, CipherSecretKey, secret)
}

// Encrypt encrypts a plaintext payload, typically a database password.
// The result is base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts an encrypted payload produced by Encrypt. All failure
// modes (bad base64, truncated data, wrong key) surface as
// ErrDecryptionFailed so callers never need to distinguish them.
func (c *Cipher) Decrypt(encryptedPayload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedPayload)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce := data[:nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// SelfTest performs a round-trip encryption and decryption to verify the
// cipher works correctly.
func (c *Cipher) SelfTest() error {
	testPayload := "test-encryption-payload"

	encrypted, err := c.Encrypt(testPayload)
	if err != nil {
		return fmt.Errorf("self test encryption failed: %w", err)
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("self test decryption failed: %w", err)
	}

	if decrypted != testPayload {
		return errors.New("self test round-trip failed: decrypted payload does not match original")
	}

	return nil
}
