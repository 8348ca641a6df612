package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptorKeyValidation(t *testing.T) {
	if _, err := NewAESEncryptor(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewAESEncryptor("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64 key")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewAESEncryptor(short); err == nil {
		t.Error("expected error for wrong-length key")
	}
	if _, err := NewAESEncryptor(testKey(t)); err != nil {
		t.Errorf("expected valid 32-byte key to be accepted: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	plaintext := "oauth-access-token-abc123"
	sealed, err := EncryptString(enc, plaintext)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if sealed == plaintext {
		t.Error("ciphertext equals plaintext")
	}
	opened, err := DecryptString(enc, sealed)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if opened != plaintext {
		t.Errorf("round trip mismatch: got %q, want %q", opened, plaintext)
	}
}

func TestEncryptStringEmptyPassthrough(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	s, err := EncryptString(enc, "")
	if err != nil || s != "" {
		t.Errorf("EncryptString(\"\") = %q, %v; want empty passthrough", s, err)
	}
	s, err = DecryptString(enc, "")
	if err != nil || s != "" {
		t.Errorf("DecryptString(\"\") = %q, %v; want empty passthrough", s, err)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	sealed, err := EncryptString(enc, "refresh-token")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)
	if _, err := DecryptString(enc, tampered); err == nil {
		t.Error("expected authentication failure for tampered ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	enc1, _ := NewAESEncryptor(testKey(t))
	enc2, _ := NewAESEncryptor(testKey(t))
	sealed, _ := EncryptString(enc1, "secret")
	if _, err := DecryptString(enc2, sealed); err == nil {
		t.Error("expected decryption with wrong key to fail")
	}
}

func TestEncryptProducesUniqueNonces(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	a, _ := EncryptString(enc, "same-plaintext")
	b, _ := EncryptString(enc, "same-plaintext")
	if strings.Compare(a, b) == 0 {
		t.Error("two encryptions of the same plaintext produced identical output")
	}
}
