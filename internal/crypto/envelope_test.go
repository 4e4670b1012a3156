package crypto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func testKey() string {
	return hex.EncodeToString(bytes.Repeat([]byte{0xAB}, 32))
}

func TestNewEncryptor_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not hex", "zz"},
		{"too short", hex.EncodeToString([]byte("short"))},
		{"too long", hex.EncodeToString(bytes.Repeat([]byte{1}, 33))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEncryptor(tt.key); err == nil {
				t.Fatalf("NewEncryptor(%q) expected error", tt.key)
			}
		})
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	e, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintext := []byte(`{"DATABASE_URL":"postgres://x","SECRET":"hunter2"}`)
	sealed, err := e.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, "v1:") {
		t.Fatalf("Seal output = %q, want v1: prefix", sealed[:8])
	}
	if strings.Contains(sealed, "hunter2") {
		t.Fatalf("Seal output contains plaintext")
	}

	opened, err := e.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("Open = %q, want %q", opened, plaintext)
	}
}

func TestSealOpen_EmptyInput(t *testing.T) {
	e, _ := NewEncryptor(testKey())

	sealed, err := e.Seal(nil)
	if err != nil || sealed != "" {
		t.Fatalf("Seal(nil) = (%q, %v), want empty", sealed, err)
	}
	opened, err := e.Open("")
	if err != nil || opened != nil {
		t.Fatalf("Open(\"\") = (%v, %v), want nil", opened, err)
	}
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	e, _ := NewEncryptor(testKey())
	sealed, err := e.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Flip a character in the body.
	b := []byte(sealed)
	b[len(b)-1] ^= 1
	if _, err := e.Open(string(b)); err == nil {
		t.Fatalf("Open(tampered) expected error")
	}

	// Wrong key.
	other, _ := NewEncryptor(hex.EncodeToString(bytes.Repeat([]byte{0xCD}, 32)))
	if _, err := other.Open(sealed); err == nil {
		t.Fatalf("Open with wrong key expected error")
	}
}

func TestSeal_NonDeterministic(t *testing.T) {
	e, _ := NewEncryptor(testKey())
	a, _ := e.Seal([]byte("same"))
	b, _ := e.Seal([]byte("same"))
	if a == b {
		t.Fatalf("two seals of the same plaintext produced identical envelopes")
	}
}
