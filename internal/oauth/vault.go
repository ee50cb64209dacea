package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"

	"golang.org/x/crypto/nacl/secretbox"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

const nonceSize = 24

// TokenMaterial is the plaintext sealed inside a vault entry. It is never
// logged and never leaves this package except as ciphertext (§4.10, §8).
type TokenMaterial struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Vault seals and opens TokenMaterial using nacl/secretbox keyed by a
// secret derived from ENCRYPTION_KEY (§4.10).
type Vault struct {
	key [32]byte
}

// NewVault derives a secretbox key from the configured encryption key.
// The key is hashed rather than used directly so operators can configure
// ENCRYPTION_KEY as an arbitrary passphrase rather than exactly 32 raw
// bytes.
func NewVault(encryptionKey string) (*Vault, error) {
	if encryptionKey == "" {
		return nil, apperrors.Invalid("encryption_key", apperrors.ErrCodeInvalid, "encryption key must not be empty")
	}
	return &Vault{key: sha256.Sum256([]byte(encryptionKey))}, nil
}

// Seal encrypts tok into ciphertext suitable for storage.
func (v *Vault) Seal(tok *TokenMaterial) ([]byte, error) {
	plaintext, err := json.Marshal(tok)
	if err != nil {
		return nil, apperrors.Runtime("failed to encode token material", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, apperrors.Runtime("failed to generate nonce", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &v.key)
	return sealed, nil
}

// Open decrypts ciphertext produced by Seal.
func (v *Vault) Open(ciphertext []byte) (*TokenMaterial, error) {
	if len(ciphertext) < nonceSize {
		return nil, apperrors.Runtime("vault ciphertext too short", nil)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, apperrors.Runtime("failed to decrypt vault entry", nil)
	}

	var tok TokenMaterial
	if err := json.Unmarshal(plaintext, &tok); err != nil {
		return nil, apperrors.Runtime("failed to decode token material", err)
	}
	return &tok, nil
}
