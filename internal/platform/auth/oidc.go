package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator verifies bearer ID tokens issued by the configured issuer.
type OIDCAuthenticator struct {
	verifier     *oidc.IDTokenVerifier
	subjectClaim string
}

func NewOIDCAuthenticator(ctx context.Context, cfg Config) (*OIDCAuthenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeOIDC {
		return nil, fmt.Errorf("auth mode must be oidc (got %q)", cfg.Mode)
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return NewOIDCAuthenticatorWithVerifier(provider.Verifier(&oidc.Config{
		ClientID:             cfg.OIDCClientID,
		SupportedSigningAlgs: cfg.OIDCSigningAlgs,
	}), cfg.SubjectClaim), nil
}

func NewOIDCAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier, subjectClaim string) *OIDCAuthenticator {
	if strings.TrimSpace(subjectClaim) == "" {
		subjectClaim = "sub"
	}
	return &OIDCAuthenticator{verifier: verifier, subjectClaim: subjectClaim}
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	rawToken := tokenFromHeader(r)
	if rawToken == "" {
		return Principal{}, ErrUnauthenticated
	}

	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Principal{}, err
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return Principal{}, err
	}

	subject := strings.TrimSpace(extractStringClaim(claims, a.subjectClaim))
	if subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return Principal{
		Subject: subject,
		Email:   extractStringClaim(claims, "email"),
	}, nil
}

func tokenFromHeader(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func extractStringClaim(claims map[string]any, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
