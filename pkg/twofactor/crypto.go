package twofactor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// EncryptionKeySize is the key size required for AES-256.
const EncryptionKeySize = 32

// SecretCipher encrypts shared-secret material before it reaches the durable
// store, so key bytes are never persisted in the clear.
type SecretCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESCipher is a SecretCipher using AES-256-GCM with a random nonce prepended
// to each ciphertext.
type AESCipher struct {
	aead cipher.AEAD
}

// NewAESCipher creates an AESCipher from a 32-byte key.
func NewAESCipher(key []byte) (*AESCipher, error) {
	if len(key) != EncryptionKeySize {
		return nil, ErrEncryptionKeyInvalid
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESCipher{aead: aead}, nil
}

func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, sealed, nil)
}

// GenerateEncryptionKey creates a random 32-byte key suitable for AES-256.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, EncryptionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateEncodedEncryptionKey creates a new key as a base64 string, ready to
// paste into the TWOFACTOR_ENCRYPTION_KEY environment variable.
func GenerateEncodedEncryptionKey() (string, error) {
	key, err := GenerateEncryptionKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ParseEncryptionKey decodes a base64-encoded 32-byte key from configuration.
func ParseEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrCipherKeyRequired
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrEncryptionKeyInvalid, err)
	}
	if len(key) != EncryptionKeySize {
		return nil, ErrEncryptionKeyInvalid
	}
	return key, nil
}

// noopCipher passes secrets through unchanged. Used when no cipher is
// configured; the memory store and tests do not need encryption at rest.
type noopCipher struct{}

func (noopCipher) Encrypt(plaintext []byte) ([]byte, error)  { return plaintext, nil }
func (noopCipher) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }
