package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/toboto/moltbot-wecom-channel/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// Salt is versioned so a future key-derivation change can re-encrypt
// old rows instead of silently failing to decrypt them.
const encryptionSalt = "moltbot-wecom-message-log-v1"

// encryptor protects recipient ids at rest with AES-GCM. Encryption is
// opt-in via WECOM_BRIDGE_ENABLE_ENCRYPTION; a disabled encryptor
// passes values through unchanged so the call sites stay branch-free.
type encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor derives the at-rest key from the environment and builds
// the AEAD. With encryption disabled it returns a passthrough encryptor.
func NewEncryptor() (*encryptor, error) {
	if os.Getenv("WECOM_BRIDGE_ENABLE_ENCRYPTION") != "true" {
		return &encryptor{}, nil
	}

	secret := os.Getenv("WECOM_BRIDGE_ENCRYPTION_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("WECOM_BRIDGE_ENCRYPTION_SECRET environment variable is required when encryption is enabled")
	}
	if len(secret) < constants.MinEncryptionSecret {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinEncryptionSecret)
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), constants.PBKDF2Iterations, constants.EncryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

// Encrypt seals the value under a fresh nonce, so equal senders stay
// unlinkable at rest. The nonce is prepended to the ciphertext.
func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, constants.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt; a passthrough encryptor returns the input
func (e *encryptor) Decrypt(value string) (string, error) {
	if value == "" || e.gcm == nil {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < constants.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:constants.NonceSize], data[constants.NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
