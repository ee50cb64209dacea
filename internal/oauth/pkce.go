package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// PKCE holds a single authorization attempt's proof-key material (§4.10).
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string // S256 or plain
	State     string
}

// NewPKCE generates a fresh verifier/challenge/state triple, preferring
// S256 and falling back to plain only when the server advertises no
// support for S256 at all.
func NewPKCE(useS256 bool) (*PKCE, error) {
	verifier, err := randomURLSafeString(32)
	if err != nil {
		return nil, err
	}
	state, err := randomURLSafeString(16)
	if err != nil {
		return nil, err
	}

	p := &PKCE{Verifier: verifier, State: state}
	if useS256 {
		sum := sha256.Sum256([]byte(verifier))
		p.Challenge = base64.RawURLEncoding.EncodeToString(sum[:])
		p.Method = "S256"
	} else {
		p.Challenge = verifier
		p.Method = "plain"
	}
	return p, nil
}

func randomURLSafeString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
