package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if strings.Contains(string(blob), testKeyHex) {
		t.Fatal("ciphertext blob contains the plaintext key")
	}

	got, err := DecryptKey(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("round trip = %q, want %q", got, testKeyHex)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "right")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestDecryptGarbage(t *testing.T) {
	if _, err := DecryptKey([]byte("not json"), "pw"); err == nil {
		t.Fatal("garbage blob accepted")
	}
}

func TestEncryptEmptyPassword(t *testing.T) {
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Fatal("empty password accepted")
	}
}

func TestLoadKey(t *testing.T) {
	t.Run("raw key", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if got != testKeyHex {
			t.Fatalf("LoadKey = %q, want prefix stripped key", got)
		}
	})

	t.Run("raw key invalid hex", func(t *testing.T) {
		if _, err := LoadKey(KeyConfig{RawPrivateKey: "zzzz"}); err == nil {
			t.Fatal("invalid hex accepted")
		}
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptKey(testKeyHex, "pw")
		if err != nil {
			t.Fatalf("EncryptKey: %v", err)
		}
		path := filepath.Join(t.TempDir(), "key.json")
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			t.Fatalf("write key file: %v", err)
		}

		got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if got != testKeyHex {
			t.Fatalf("LoadKey = %q, want %q", got, testKeyHex)
		}
	})

	t.Run("no source", func(t *testing.T) {
		if _, err := LoadKey(KeyConfig{}); err == nil {
			t.Fatal("empty config accepted")
		}
	})
}

