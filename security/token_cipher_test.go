package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestTokenCipher_RoundTrip(t *testing.T) {
	cipher, err := NewTokenCipherFromString("helpdesk-app-key", WithKeyID("primary"), WithVersion(2))
	if err != nil {
		t.Fatalf("new token cipher: %v", err)
	}
	ctx := context.Background()

	sealed, err := cipher.Encrypt(ctx, []byte("zendesk-access-token"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !IsSealed(string(sealed)) {
		t.Fatalf("expected envelope prefix, got %q", sealed)
	}
	if bytes.Contains(sealed, []byte("zendesk-access-token")) {
		t.Fatalf("expected plaintext to be hidden")
	}
	if !strings.Contains(string(sealed), `"kid":"primary"`) {
		t.Fatalf("expected key id in envelope, got %q", sealed)
	}

	opened, err := cipher.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(opened) != "zendesk-access-token" {
		t.Fatalf("unexpected plaintext %q", opened)
	}
}

func TestTokenCipher_NonceIsFreshPerCall(t *testing.T) {
	cipher, err := NewTokenCipherFromString("helpdesk-app-key")
	if err != nil {
		t.Fatalf("new token cipher: %v", err)
	}
	first, _ := cipher.Encrypt(context.Background(), []byte("same"))
	second, _ := cipher.Encrypt(context.Background(), []byte("same"))
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestTokenCipher_PreviousKeyStillDecrypts(t *testing.T) {
	ctx := context.Background()
	old, err := NewTokenCipherFromString("old-key", WithKeyID("app-key"), WithVersion(1))
	if err != nil {
		t.Fatalf("old cipher: %v", err)
	}
	sealed, err := old.Encrypt(ctx, []byte("refresh-token"))
	if err != nil {
		t.Fatalf("encrypt with old key: %v", err)
	}

	rotated, err := NewTokenCipherFromString("new-key",
		WithVersion(2),
		WithPreviousKey([]byte("old-key"), "app-key", 1),
	)
	if err != nil {
		t.Fatalf("rotated cipher: %v", err)
	}
	opened, err := rotated.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("decrypt with previous key: %v", err)
	}
	if string(opened) != "refresh-token" {
		t.Fatalf("unexpected plaintext %q", opened)
	}
	if rotated.Version() != 2 || rotated.KeyID() != "app-key" {
		t.Fatalf("unexpected current key %q v%d", rotated.KeyID(), rotated.Version())
	}
}

func TestTokenCipher_RejectsForeignInput(t *testing.T) {
	cipher, err := NewTokenCipherFromString("helpdesk-app-key")
	if err != nil {
		t.Fatalf("new token cipher: %v", err)
	}
	ctx := context.Background()

	if _, err := cipher.Decrypt(ctx, []byte("plain-token")); err == nil {
		t.Fatalf("expected prefix error")
	}

	other, _ := NewTokenCipherFromString("another-key")
	sealed, err := other.Encrypt(ctx, []byte("token"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := cipher.Decrypt(ctx, sealed); err == nil {
		t.Fatalf("expected authentication failure with the wrong key")
	}

	if _, err := cipher.Encrypt(ctx, nil); err == nil {
		t.Fatalf("expected empty plaintext to be rejected")
	}
	if _, err := NewTokenCipherFromString("   "); err == nil {
		t.Fatalf("expected empty key material to be rejected")
	}
}
