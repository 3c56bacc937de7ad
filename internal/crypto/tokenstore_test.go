package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptToken("tok-abc123", "hunter2")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}

	token, err := DecryptToken(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptToken: %v", err)
	}
	if token != "tok-abc123" {
		t.Errorf("token = %q, want tok-abc123", token)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptToken("tok-abc123", "hunter2")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}

	if _, err := DecryptToken(blob, "wrong"); err == nil {
		t.Error("DecryptToken succeeded with wrong password")
	}
}

func TestEncryptRejectsEmpty(t *testing.T) {
	if _, err := EncryptToken("", "pw"); err == nil {
		t.Error("EncryptToken accepted empty token")
	}
	if _, err := EncryptToken("tok", ""); err == nil {
		t.Error("EncryptToken accepted empty password")
	}
}

func TestLoadTokenResolutionOrder(t *testing.T) {
	blob, err := EncryptToken("from-file", "pw")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Raw token wins over the encrypted file.
	token, err := LoadToken(TokenConfig{RawToken: "  raw  ", EncryptedTokenPath: path, TokenPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if token != "raw" {
		t.Errorf("token = %q, want raw (trimmed)", token)
	}

	token, err = LoadToken(TokenConfig{EncryptedTokenPath: path, TokenPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if token != "from-file" {
		t.Errorf("token = %q, want from-file", token)
	}

	// Nothing configured means unauthenticated, not an error.
	token, err = LoadToken(TokenConfig{})
	if err != nil || token != "" {
		t.Errorf("LoadToken(empty) = %q, %v; want empty, nil", token, err)
	}
}

func TestDecryptRejectsMangledBlob(t *testing.T) {
	blob, err := EncryptToken("tok", "pw")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}
	mangled := strings.Replace(string(blob), `"version": 1`, `"version": 9`, 1)
	if _, err := DecryptToken([]byte(mangled), "pw"); err == nil {
		t.Error("DecryptToken accepted unsupported version")
	}
}
