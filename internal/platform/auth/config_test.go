package auth

import (
	"os"
	"testing"
)

func TestConfigFromEnv_Dev(t *testing.T) {
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("DEV_AUTH_SUBJECT", "provider-a")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("Mode=%q, want dev", cfg.Mode)
	}
	if cfg.DevSubject != "provider-a" {
		t.Fatalf("DevSubject=%q, want provider-a", cfg.DevSubject)
	}
}

func TestConfigFromEnv_OIDC_RequiresIssuerAndClientID(t *testing.T) {
	_ = os.Unsetenv("OIDC_ISSUER_URL")
	_ = os.Unsetenv("OIDC_CLIENT_ID")
	t.Setenv("AUTH_MODE", "oidc")

	_, err := ConfigFromEnv()
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestConfigFromEnv_UnknownMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "disabled")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConfigFromEnv_OIDCSigningAlgs(t *testing.T) {
	t.Setenv("AUTH_MODE", "oidc")
	t.Setenv("OIDC_ISSUER_URL", "https://issuer.example")
	t.Setenv("OIDC_CLIENT_ID", "contracts")
	t.Setenv("OIDC_SIGNING_ALGS", "RS256, EdDSA")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if len(cfg.OIDCSigningAlgs) != 2 || cfg.OIDCSigningAlgs[0] != "RS256" || cfg.OIDCSigningAlgs[1] != "EdDSA" {
		t.Fatalf("OIDCSigningAlgs=%v, want [RS256 EdDSA]", cfg.OIDCSigningAlgs)
	}

	t.Setenv("OIDC_SIGNING_ALGS", "HS256")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for HS256")
	}
}
