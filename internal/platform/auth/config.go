package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/animus-labs/animus-contracts/internal/platform/env"
)

type Mode string

const (
	ModeOIDC Mode = "oidc"
	ModeDev  Mode = "dev"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	SubjectClaim string

	OIDCIssuerURL string
	OIDCClientID  string
	// OIDCSigningAlgs restricts accepted ID token algorithms. Empty means
	// the verifier default (RS256).
	OIDCSigningAlgs []string

	DevSubject string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeOIDC))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, dev (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:          mode,
		SubjectClaim:  env.String("AUTH_SUBJECT_CLAIM", "sub"),
		OIDCIssuerURL: env.String("OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("OIDC_CLIENT_ID", ""),
		DevSubject:    env.String("DEV_AUTH_SUBJECT", ""),

		OIDCSigningAlgs: env.CSV("OIDC_SIGNING_ALGS", nil),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SubjectClaim) == "" {
		return errors.New("AUTH_SUBJECT_CLAIM is required")
	}
	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("OIDC_ISSUER_URL is required when AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("OIDC_CLIENT_ID is required when AUTH_MODE=oidc")
		}
		for _, alg := range c.OIDCSigningAlgs {
			if !supportedAlg(alg) {
				return fmt.Errorf("OIDC_SIGNING_ALGS: unsupported algorithm %q", alg)
			}
		}
	case ModeDev:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}

func supportedAlg(alg string) bool {
	switch alg {
	case oidc.RS256, oidc.RS384, oidc.RS512,
		oidc.ES256, oidc.ES384, oidc.ES512,
		oidc.PS256, oidc.PS384, oidc.PS512,
		oidc.EdDSA:
		return true
	default:
		return false
	}
}
