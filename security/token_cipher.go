// Package security seals platform OAuth tokens before they are written to the
// credential store.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-helpdesk/core"
)

const (
	EnvelopePrefix = "helpdesk.token.v1:"
	algorithm      = "aes-256-gcm"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type sealingKey struct {
	id      string
	version int
	aead    cipher.AEAD
}

type Option func(*TokenCipher) error

// TokenCipher encrypts with its current key and decrypts with the current key
// or any previous key registered for rotation.
type TokenCipher struct {
	current  sealingKey
	previous []sealingKey
}

func WithKeyID(id string) Option {
	return func(c *TokenCipher) error {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			c.current.id = trimmed
		}
		return nil
	}
}

func WithVersion(version int) Option {
	return func(c *TokenCipher) error {
		if version > 0 {
			c.current.version = version
		}
		return nil
	}
}

// WithPreviousKey keeps tokens sealed under a retired key readable.
func WithPreviousKey(keyMaterial []byte, id string, version int) Option {
	return func(c *TokenCipher) error {
		key, err := newSealingKey(keyMaterial, id, version)
		if err != nil {
			return err
		}
		c.previous = append(c.previous, key)
		return nil
	}
}

func NewTokenCipher(keyMaterial []byte, opts ...Option) (*TokenCipher, error) {
	current, err := newSealingKey(keyMaterial, "app-key", 1)
	if err != nil {
		return nil, err
	}
	c := &TokenCipher{current: current}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func NewTokenCipherFromString(key string, opts ...Option) (*TokenCipher, error) {
	return NewTokenCipher([]byte(key), opts...)
}

func (c *TokenCipher) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, c.current.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := c.current.aead.Seal(nil, nonce, plaintext, nil)
	data, err := json.Marshal(envelope{
		KeyID:      c.current.id,
		Version:    c.current.version,
		Algorithm:  algorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(EnvelopePrefix), data...), nil
}

func (c *TokenCipher) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	if !bytes.HasPrefix(ciphertext, []byte(EnvelopePrefix)) {
		return nil, fmt.Errorf("security: invalid token envelope prefix")
	}
	var parsed envelope
	if err := json.Unmarshal(ciphertext[len(EnvelopePrefix):], &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.Algorithm != "" && parsed.Algorithm != algorithm {
		return nil, fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}
	key, ok := c.keyFor(parsed.KeyID, parsed.Version)
	if !ok {
		return nil, fmt.Errorf("security: no key for %q version %d", parsed.KeyID, parsed.Version)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	plaintext, err := key.aead.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (c *TokenCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.current.id
}

func (c *TokenCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.current.version
}

// IsSealed reports whether value was produced by a TokenCipher.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix)
}

func (c *TokenCipher) keyFor(id string, version int) (sealingKey, bool) {
	candidates := append([]sealingKey{c.current}, c.previous...)
	for _, key := range candidates {
		if (id == "" || id == key.id) && (version <= 0 || version == key.version) {
			return key, true
		}
	}
	return sealingKey{}, false
}

func newSealingKey(keyMaterial []byte, id string, version int) (sealingKey, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return sealingKey{}, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return sealingKey{}, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return sealingKey{}, fmt.Errorf("security: create gcm: %w", err)
	}
	if version <= 0 {
		version = 1
	}
	return sealingKey{id: strings.TrimSpace(id), version: version, aead: aead}, nil
}

// normalizeKey uses 16, 24 or 32 byte material as is and hashes anything else
// down to a 32 byte key.
func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		return append([]byte(nil), value...)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*TokenCipher)(nil)
