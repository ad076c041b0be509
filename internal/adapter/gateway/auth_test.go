package gateway

import (
	"errors"
	"testing"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{
		{Token: "secret-123", Name: "classroom"},
		{Token: "secret-456", Name: "kiosk"},
	})

	info, err := auth.Authenticate("secret-456")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "kiosk" {
		t.Errorf("Name = %q", info.Name)
	}

	// Callers get a copy.
	info.Name = "changed"
	again, _ := auth.Authenticate("secret-456")
	if again.Name != "kiosk" {
		t.Errorf("stored client info was mutated: %q", again.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "classroom"}})

	for _, token := range []string{"wrong-token", "", "secret-12"} {
		_, err := auth.Authenticate(token)
		if !errors.Is(err, domain.ErrGatewayAuthFailed) {
			t.Errorf("Authenticate(%q) err = %v, want ErrGatewayAuthFailed", token, err)
		}
	}
	if code := domain.ErrorCodeOf(domain.ErrGatewayAuthFailed); code != domain.CodeGatewayAuth {
		t.Errorf("code = %q", code)
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	auth := NewStaticTokenAuth(nil)

	_, err := auth.Authenticate("anything")
	if err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestNewAuthenticator(t *testing.T) {
	open := NewAuthenticator(config.AuthConfig{})
	info, err := open.Authenticate("")
	if err != nil || info.Name != "anonymous" {
		t.Errorf("open auth = %+v, %v", info, err)
	}

	static := NewAuthenticator(config.AuthConfig{Type: "static", Tokens: []config.TokenConfig{{Token: "t", Name: "n"}}})
	if _, err := static.Authenticate(""); err == nil {
		t.Error("static auth accepted an empty token")
	}
}
