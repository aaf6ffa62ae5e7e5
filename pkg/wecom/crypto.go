// Package wecom implements the WeCom (Enterprise WeChat) callback
// protocol: request signatures, message encryption, envelope decoding
// and the first-party HTTP API.
package wecom

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1" // #nosec G505 - SHA-1 is mandated by the WeCom callback protocol
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	encodingAESKeyLength = 43
	aesKeySize           = 32
	randomPrefixSize     = 16
	msgLenSize           = 4
	paddingBlockSize     = 32
)

var (
	// ErrInvalidAESKey indicates the encodingAESKey does not decode to 32 bytes
	ErrInvalidAESKey = errors.New("invalid encoding AES key")
	// ErrInvalidPadding indicates the decrypted buffer carries malformed padding
	ErrInvalidPadding = errors.New("invalid message padding")
	// ErrCorpIDMismatch indicates the plaintext was encrypted for another tenant
	ErrCorpIDMismatch = errors.New("corp id mismatch")
	// ErrCiphertextTooShort indicates the plaintext is shorter than its fixed header
	ErrCiphertextTooShort = errors.New("decrypted message too short")
	// ErrInvalidMessageLength indicates the embedded length field exceeds the buffer
	ErrInvalidMessageLength = errors.New("invalid message length")
)

// Signature computes the WeCom request signature: the SHA-1 hex digest of
// the lexicographically sorted token, timestamp, nonce and ciphertext
// concatenated without separator.
func Signature(token, timestamp, nonce, encrypted string) string {
	parts := []string{token, timestamp, nonce, encrypted}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, ""))) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a WeCom request signature. The comparison is
// case-sensitive; WeCom always sends lowercase hex.
func VerifySignature(token, timestamp, nonce, encrypted, signature string) bool {
	return Signature(token, timestamp, nonce, encrypted) == signature
}

// aesKey reconstructs the 32-byte AES key from the 43-character
// encodingAESKey by restoring the stripped base64 padding character.
func aesKey(encodingAESKey string) ([]byte, error) {
	if len(encodingAESKey) != encodingAESKeyLength {
		return nil, fmt.Errorf("%w: got %d characters, want %d", ErrInvalidAESKey, len(encodingAESKey), encodingAESKeyLength)
	}

	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAESKey, err)
	}
	if len(key) != aesKeySize {
		return nil, fmt.Errorf("%w: decoded to %d bytes, want %d", ErrInvalidAESKey, len(key), aesKeySize)
	}

	return key, nil
}

// DecryptMessage decrypts a base64 WeCom ciphertext and validates the
// embedded tenant identity. The plaintext layout is
// random(16) || length(4, big-endian) || message || corpID.
// The same routine decrypts the handshake echostr challenge.
func DecryptMessage(encodingAESKey, encrypted, corpID string) (string, error) {
	key, err := aesKey(encodingAESKey)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plain := make([]byte, len(data))
	// IV is the first 16 bytes of the key per the WeCom protocol.
	cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(plain, data)

	plain, err = removePadding(plain)
	if err != nil {
		return "", err
	}

	if len(plain) < randomPrefixSize+msgLenSize {
		return "", ErrCiphertextTooShort
	}

	msgLen := binary.BigEndian.Uint32(plain[randomPrefixSize : randomPrefixSize+msgLenSize])
	msgEnd := randomPrefixSize + msgLenSize + int(msgLen)
	if msgEnd > len(plain) {
		return "", ErrInvalidMessageLength
	}

	msg := plain[randomPrefixSize+msgLenSize : msgEnd]
	gotCorpID := string(plain[msgEnd:])
	if gotCorpID != corpID {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrCorpIDMismatch, corpID, gotCorpID)
	}

	return string(msg), nil
}

// EncryptMessage is the inverse of DecryptMessage. It is used by the
// handshake round-trip tests and by deployments that echo encrypted
// passive replies.
func EncryptMessage(encodingAESKey, message, corpID string) (string, error) {
	key, err := aesKey(encodingAESKey)
	if err != nil {
		return "", err
	}

	random := make([]byte, randomPrefixSize)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate random prefix: %w", err)
	}

	msg := []byte(message)
	plain := make([]byte, 0, randomPrefixSize+msgLenSize+len(msg)+len(corpID)+paddingBlockSize)
	plain = append(plain, random...)
	plain = binary.BigEndian.AppendUint32(plain, uint32(len(msg)))
	plain = append(plain, msg...)
	plain = append(plain, corpID...)
	plain = addPadding(plain)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(out, plain)

	return base64.StdEncoding.EncodeToString(out), nil
}

// removePadding strips the WeCom PKCS7 variant: the pad length is the
// last byte, must be within [1, 32], and every trailing pad byte must
// carry the same value. Anything else is rejected rather than truncated.
func removePadding(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, ErrInvalidPadding
	}

	n := int(buf[len(buf)-1])
	if n < 1 || n > paddingBlockSize || n > len(buf) {
		return nil, ErrInvalidPadding
	}
	for i := 0; i < n; i++ {
		if buf[len(buf)-1-i] != byte(n) {
			return nil, ErrInvalidPadding
		}
	}

	return buf[:len(buf)-n], nil
}

// addPadding pads to a 32-byte block; a full block of padding is added
// when the buffer is already aligned.
func addPadding(buf []byte) []byte {
	n := paddingBlockSize - len(buf)%paddingBlockSize
	for i := 0; i < n; i++ {
		buf = append(buf, byte(n))
	}
	return buf
}
