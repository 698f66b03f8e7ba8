// Package identity resolves opaque party identifiers to verification keys.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUnknownIdentity is returned when a resolver has no record for an id.
var ErrUnknownIdentity = errors.New("unknown identity")

// Reference is an identity together with its public key material.
type Reference struct {
	ID          string
	PublicKey   []byte
	DisplayName string
}

func (r Reference) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("identity id is required")
	}
	if len(r.PublicKey) == 0 {
		return errors.New("public key is required")
	}
	return nil
}

// Resolver looks up identities. Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Reference, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, id string) (Reference, error)

func (f ResolverFunc) Resolve(ctx context.Context, id string) (Reference, error) {
	return f(ctx, id)
}
