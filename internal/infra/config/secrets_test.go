package config

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encrypted, err := EncryptValue("AIza-secret", "pass")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if strings.Contains(encrypted, "AIza") {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := DecryptValue(encrypted, "pass")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if got != "AIza-secret" {
		t.Errorf("got %q", got)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptValue(encrypted, "wrong-pass"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestDecryptValueMalformed(t *testing.T) {
	tests := map[string]string{
		"no separator": "abcdef",
		"bad salt":     "zz:aabb",
		"bad data":     "aabb:zz",
		"too short":    "aabbccddee112233aabbccddee112233:aabb",
	}
	for name, in := range tests {
		if _, err := DecryptValue(in, "pass"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDecryptSecrets(t *testing.T) {
	encKey, err := EncryptValue("api-key", "pp")
	if err != nil {
		t.Fatal(err)
	}
	encTok, err := EncryptValue("gw-token", "pp")
	if err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	cfg.LLM.APIKey = "enc:" + encKey
	cfg.Gateway.Auth.Tokens = []TokenConfig{
		{Name: "cli", Token: "enc:" + encTok},
		{Name: "plain", Token: "as-is"},
	}

	if err := decryptSecrets(cfg, "pp"); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.LLM.APIKey != "api-key" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.Gateway.Auth.Tokens[0].Token != "gw-token" || cfg.Gateway.Auth.Tokens[1].Token != "as-is" {
		t.Errorf("Tokens = %+v", cfg.Gateway.Auth.Tokens)
	}
}
