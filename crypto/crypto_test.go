package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func newKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{name: "empty key", key: "", wantError: true, errorMsg: "encryption key is empty"},
		{name: "invalid base64", key: "not-valid-base64!@#$", wantError: true, errorMsg: "base64 decode failed"},
		{name: "key too short", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "valid 32-byte key", key: base64.StdEncoding.EncodeToString(make([]byte, 32))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSealer(tt.key)
			if tt.wantError {
				if err == nil {
					t.Fatalf("NewSealer() expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewSealer() error = %v, want error containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil || s == nil {
				t.Fatalf("NewSealer() unexpected error: %v", err)
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(newKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("oauth:abc123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("sealed value %q lacks prefix", sealed)
	}
	if strings.Contains(sealed, "abc123") {
		t.Fatalf("sealed value leaks plaintext")
	}

	again, _ := s.Seal("oauth:abc123")
	if again == sealed {
		t.Errorf("expected distinct ciphertexts for repeated seals (random nonce)")
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "oauth:abc123" {
		t.Errorf("Open = %q, want oauth:abc123", plain)
	}
}

func TestOpenRejectsTamperingAndWrongKey(t *testing.T) {
	s1, _ := NewSealer(newKey(t))
	s2, _ := NewSealer(newKey(t))

	sealed, err := s1.Seal("oauth:secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s2.Open(sealed); err == nil {
		t.Errorf("expected wrong key to fail")
	}

	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	raw[len(raw)-1] ^= 0xFF
	tampered := SealedPrefix + base64.StdEncoding.EncodeToString(raw)
	if _, err := s1.Open(tampered); err == nil {
		t.Errorf("expected tampered ciphertext to fail")
	}

	if _, err := s1.Open("oauth:plain"); err == nil {
		t.Errorf("expected unsealed value to be rejected")
	}
	if _, err := s1.Open(SealedPrefix + "AAAA"); err == nil {
		t.Errorf("expected short ciphertext to be rejected")
	}
	if _, err := s1.Seal(""); err == nil {
		t.Errorf("expected empty plaintext to be rejected")
	}
}
