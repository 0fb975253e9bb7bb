package utils

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret := "message-secret"
	inputs := []string{
		"hello",
		"a longer message with spaces and punctuation, ok?",
		strings.Repeat("x", 4096),
		"émoji ☂ and unicode",
	}

	for _, plain := range inputs {
		encrypted, err := EncryptMessage(secret, plain)
		if err != nil {
			t.Fatalf("EncryptMessage(%q): %v", plain, err)
		}
		if encrypted == plain {
			t.Fatalf("expected ciphertext to differ from plaintext for %q", plain)
		}

		if got := DecryptMessage(secret, encrypted); got != plain {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plain)
		}
	}
}

func TestEncryptEmptyPassesThrough(t *testing.T) {
	encrypted, err := EncryptMessage("secret", "")
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	if encrypted != "" {
		t.Fatalf("expected empty output, got %q", encrypted)
	}
}

func TestDecryptGarbageReturnsInput(t *testing.T) {
	secret := "message-secret"
	garbage := []string{
		"",
		"not even base64 !!!",
		"aGVsbG8=", // valid base64, too short to carry a salt
		"legacy plaintext message stored before encryption existed",
	}

	for _, input := range garbage {
		if got := DecryptMessage(secret, input); got != input {
			t.Fatalf("expected %q unchanged, got %q", input, got)
		}
	}
}

func TestDecryptWithWrongSecretReturnsInput(t *testing.T) {
	encrypted, err := EncryptMessage("right-secret", "confidential")
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}

	if got := DecryptMessage("wrong-secret", encrypted); got != encrypted {
		t.Fatalf("expected ciphertext unchanged under wrong key, got %q", got)
	}
}
