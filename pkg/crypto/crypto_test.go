package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	c, err := NewTokenCipher("test-master-secret")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	plaintext := "ya29.a0AfH6SMB-access-token"
	sealed, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Errorf("roundtrip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	c, _ := NewTokenCipher("test-master-secret")
	sealed, _ := c.Encrypt("secret-token")

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := c.Decrypt(tampered); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c1, _ := NewTokenCipher("secret-one")
	c2, _ := NewTokenCipher("secret-two")

	sealed, _ := c1.Encrypt("secret-token")
	if _, err := c2.Decrypt(sealed); err == nil {
		t.Fatal("expected failure when decrypting with a different key")
	}
}

func TestNewTokenCipherEmptySecret(t *testing.T) {
	_, err := NewTokenCipher("")
	if err == nil {
		t.Fatal("expected configuration error for empty secret")
	}
	if !strings.Contains(err.Error(), "configuration") {
		t.Errorf("unexpected error: %v", err)
	}
}
