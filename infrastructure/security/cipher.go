package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"socialops/domain/model"
)

const (
	// KeySize is the required master key length (AES-256).
	KeySize = 32

	PurposeToken     = "oauth-token"
	PurposeTransport = "oauth-transport"
)

var encoding = base64.RawURLEncoding.Strict()

// Cipher seals secrets with AES-256-GCM under a subkey derived from the process
// master key for one purpose. Output is base64url(nonce || ciphertext || tag).
type Cipher struct {
	aead    cipher.AEAD
	purpose string
}

// NewCipher derives the purpose subkey and prepares the AEAD.
func NewCipher(masterKey []byte, purpose string) (*Cipher, error) {
	if len(masterKey) == 0 {
		return nil, &model.ConfigurationError{Setting: "security.encryptionKey", Reason: "not set"}
	}
	if len(masterKey) != KeySize {
		return nil, &model.ConfigurationError{
			Setting: "security.encryptionKey",
			Reason:  fmt.Sprintf("must be %d bytes, got %d", KeySize, len(masterKey)),
		}
	}
	sub := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("socialops/"+purpose)), sub); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead, purpose: purpose}, nil
}

// ParseKey accepts a 32-byte key encoded as base64 (std or url, padded or not)
// or hex.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &model.ConfigurationError{Setting: "security.encryptionKey", Reason: "not set"}
	}
	if len(raw) == 2*KeySize {
		if b, err := hex.DecodeString(raw); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(raw); err == nil {
			if len(b) != KeySize {
				return nil, &model.ConfigurationError{
					Setting: "security.encryptionKey",
					Reason:  fmt.Sprintf("must decode to %d bytes, got %d", KeySize, len(b)),
				}
			}
			return b, nil
		}
	}
	return nil, &model.ConfigurationError{Setting: "security.encryptionKey", Reason: "not valid base64 or hex"}
}

func (c *Cipher) ready() error {
	if c == nil || c.aead == nil {
		return &model.ConfigurationError{Setting: "security.encryptionKey", Reason: "cipher not initialised"}
	}
	return nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(c.purpose))
	return encoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	raw, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return "", &model.IntegrityError{Reason: "malformed encoding"}
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", &model.IntegrityError{Reason: "truncated"}
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], []byte(c.purpose))
	if err != nil {
		return "", &model.IntegrityError{Reason: "authentication failed"}
	}
	return string(plain), nil
}
