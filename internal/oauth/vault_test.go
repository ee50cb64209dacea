package oauth

import (
	"bytes"
	"testing"
)

func TestVaultSealOpenRoundTrip(t *testing.T) {
	v, err := NewVault("super-secret-passphrase")
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}

	mat := &TokenMaterial{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		ClientID:     "client-1",
	}

	ciphertext, err := v.Seal(mat)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(ciphertext, []byte(mat.AccessToken)) {
		t.Fatal("ciphertext must not contain the plaintext token")
	}

	opened, err := v.Open(ciphertext)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if opened.AccessToken != mat.AccessToken || opened.RefreshToken != mat.RefreshToken {
		t.Errorf("round-tripped token material mismatch: got %+v", opened)
	}
}

func TestVaultRejectsEmptyKey(t *testing.T) {
	if _, err := NewVault(""); err == nil {
		t.Fatal("expected error for empty encryption key")
	}
}

func TestVaultOpenRejectsTamperedCiphertext(t *testing.T) {
	v, _ := NewVault("super-secret-passphrase")
	ciphertext, _ := v.Seal(&TokenMaterial{AccessToken: "access-123"})

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := v.Open(tampered); err == nil {
		t.Fatal("expected error opening tampered ciphertext")
	}
}

func TestPKCEGeneratesS256Challenge(t *testing.T) {
	p, err := NewPKCE(true)
	if err != nil {
		t.Fatalf("NewPKCE failed: %v", err)
	}
	if p.Method != "S256" {
		t.Errorf("expected S256 method, got %s", p.Method)
	}
	if p.Challenge == p.Verifier {
		t.Error("S256 challenge must differ from verifier")
	}
}

func TestPKCEPlainFallback(t *testing.T) {
	p, err := NewPKCE(false)
	if err != nil {
		t.Fatalf("NewPKCE failed: %v", err)
	}
	if p.Method != "plain" {
		t.Errorf("expected plain method, got %s", p.Method)
	}
	if p.Challenge != p.Verifier {
		t.Error("plain challenge must equal verifier")
	}
}
