package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// secretPrefix marks a state value as an AEAD envelope. The layout is
// enc:v1:<iv_b64>:<ciphertext_b64>:<tag_b64>.
const secretPrefix = "enc:v1:"

const gcmTagSize = 16

// fallbackKeyMaterial is hashed into a key when no secret is configured.
// It keeps secrets unreadable to casual inspection only.
const fallbackKeyMaterial = "flora-oracle-state"

// secretCipher wraps state secrets with AES-256-GCM. The key is the SHA-256
// of the configured secret, so any passphrase length works.
type secretCipher struct {
	aead cipher.AEAD
}

func newSecretCipher(secret string) (*secretCipher, error) {
	if secret == "" {
		secret = fallbackKeyMaterial
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize state cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize state cipher")
	}
	return &secretCipher{aead: aead}, nil
}

// Wrap encrypts value into an enc:v1 envelope with a fresh random IV.
func (c *secretCipher) Wrap(value string) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", errors.Wrap(err, "could not draw nonce")
	}
	sealed := c.aead.Seal(nil, iv, []byte(value), nil)
	tagAt := len(sealed) - gcmTagSize
	enc := base64.StdEncoding
	return secretPrefix + enc.EncodeToString(iv) +
		":" + enc.EncodeToString(sealed[:tagAt]) +
		":" + enc.EncodeToString(sealed[tagAt:]), nil
}

// Unwrap decrypts an enc:v1 envelope. Values without the prefix are
// returned as stored, so state persisted before wrapping still loads.
func (c *secretCipher) Unwrap(value string) (string, error) {
	if !strings.HasPrefix(value, secretPrefix) {
		return value, nil
	}
	parts := strings.Split(strings.TrimPrefix(value, secretPrefix), ":")
	if len(parts) != 3 {
		return "", errors.New("malformed secret envelope")
	}
	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", errors.Wrap(err, "malformed secret envelope")
	}
	ct, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", errors.Wrap(err, "malformed secret envelope")
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", errors.Wrap(err, "malformed secret envelope")
	}
	plain, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", errors.Wrap(err, "could not decrypt secret state")
	}
	return string(plain), nil
}
