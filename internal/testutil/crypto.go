package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/imapvault/server/internal/crypto"
)

// TestEncryptor returns an encryptor built from a deterministic 32-byte key.
func TestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("Failed to create test encryptor: %v", err)
	}
	return enc
}
