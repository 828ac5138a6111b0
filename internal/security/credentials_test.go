package security

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateGeneratesAndPersistsAKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.key")

	c1, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c2, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("unexpected error loading persisted key: %v", err)
	}

	sealed, err := c1.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := c2.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt with reloaded key: %v", err)
	}
	if plain != "hunter2" {
		t.Fatalf("expected round-trip to recover plaintext, got %q", plain)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.key")
	c, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sealed, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := c.Decrypt(sealed); err == nil {
		t.Fatalf("expected tampered ciphertext to fail authentication")
	}
}
