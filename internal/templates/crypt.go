package templates

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// encPrefix marks an encrypted override body. Format:
//
//	enc:v1:<base64(nonce || ciphertext)>
const encPrefix = "enc:v1:"

// Cipher encrypts and decrypts location-scoped template overrides with
// AES-256-GCM. Hosts on shared infrastructure opt in to at-rest encryption
// for bodies that embed door codes or private URLs.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("template cipher key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals a plaintext body into the enc:v1 wire form.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an enc:v1 body produced by Encrypt.
func (c *Cipher) Decrypt(body string) (string, error) {
	raw, ok := strings.CutPrefix(body, encPrefix)
	if !ok {
		return "", errors.New("not an encrypted template body")
	}
	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode encrypted template: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return "", errors.New("encrypted template body too short")
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open encrypted template: %w", err)
	}
	return string(plain), nil
}
