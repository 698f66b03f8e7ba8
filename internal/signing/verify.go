// Package signing verifies Ed25519 signatures over contract digests.
package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Reason classifies a verification failure.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonInvalid   Reason = "invalid"
)

// DigestSize is the expected digest length in bytes.
const DigestSize = sha256.Size

var (
	ErrMalformed = errors.New("malformed signature input")
	ErrInvalid   = errors.New("signature does not verify")
)

// VerificationError explains why a signature was rejected.
type VerificationError struct {
	Reason Reason
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return "signature " + string(e.Reason)
	}
	return fmt.Sprintf("signature %s: %s", e.Reason, e.Detail)
}

// Is lets callers match with errors.Is(err, signing.ErrMalformed).
func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Reason == ReasonMalformed
	case ErrInvalid:
		return e.Reason == ReasonInvalid
	}
	return false
}

func malformed(format string, args ...any) error {
	return &VerificationError{Reason: ReasonMalformed, Detail: fmt.Sprintf(format, args...)}
}

// Verify checks signature over digest with publicKey. It has no side effects.
func Verify(publicKey, digest, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return malformed("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return malformed("signature must be %d bytes, got %d", ed25519.SignatureSize, len(signature))
	}
	if len(digest) != DigestSize {
		return malformed("digest must be %d bytes, got %d", DigestSize, len(digest))
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), digest, signature) {
		return &VerificationError{Reason: ReasonInvalid}
	}
	return nil
}

// Valid is the boolean form of Verify.
func Valid(publicKey, digest, signature []byte) bool {
	return Verify(publicKey, digest, signature) == nil
}

// Sign produces a signature over digest.
func Sign(privateKey ed25519.PrivateKey, digest []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, malformed("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	if len(digest) != DigestSize {
		return nil, malformed("digest must be %d bytes, got %d", DigestSize, len(digest))
	}
	return ed25519.Sign(privateKey, digest), nil
}

// ParsePublicKey decodes a textual public key (base64, base64url or hex).
func ParsePublicKey(text string) ([]byte, error) {
	raw, err := decode(text)
	if err != nil {
		return nil, malformed("public key: %v", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, malformed("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return raw, nil
}

// ParsePrivateKey decodes a textual private key. A 32-byte value is treated
// as a seed.
func ParsePrivateKey(text string) (ed25519.PrivateKey, error) {
	raw, err := decode(text)
	if err != nil {
		return nil, malformed("private key: %v", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, malformed("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// DecodeSignature decodes a textual signature (base64, base64url or hex).
func DecodeSignature(text string) ([]byte, error) {
	raw, err := decode(text)
	if err != nil {
		return nil, malformed("signature: %v", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, malformed("signature must be %d bytes, got %d", ed25519.SignatureSize, len(raw))
	}
	return raw, nil
}

// DecodeDigest decodes a hex or base64 digest.
func DecodeDigest(text string) ([]byte, error) {
	raw, err := decode(text)
	if err != nil {
		return nil, malformed("digest: %v", err)
	}
	if len(raw) != DigestSize {
		return nil, malformed("digest must be %d bytes, got %d", DigestSize, len(raw))
	}
	return raw, nil
}

// Encode renders raw bytes the way the API emits them.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func decode(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty value")
	}
	if isHex(text) {
		return hex.DecodeString(text)
	}
	if raw, err := base64.StdEncoding.DecodeString(text); err == nil {
		return raw, nil
	}
	if raw, err := base64.RawStdEncoding.DecodeString(text); err == nil {
		return raw, nil
	}
	if raw, err := base64.URLEncoding.DecodeString(text); err == nil {
		return raw, nil
	}
	if raw, err := base64.RawURLEncoding.DecodeString(text); err == nil {
		return raw, nil
	}
	return nil, errors.New("not hex or base64")
}

func isHex(text string) bool {
	if len(text)%2 != 0 {
		return false
	}
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
