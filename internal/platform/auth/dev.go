package auth

import (
	"context"
	"net/http"
	"strings"
)

// HeaderActor selects the caller in dev mode.
const HeaderActor = "X-Contracts-Actor"

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Principal, error)
}

// DevAuthenticator trusts the actor header, falling back to a fixed subject.
type DevAuthenticator struct {
	subject string
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{subject: strings.TrimSpace(cfg.DevSubject)}
}

func (a *DevAuthenticator) Authenticate(_ context.Context, r *http.Request) (Principal, error) {
	subject := strings.TrimSpace(r.Header.Get(HeaderActor))
	if subject == "" {
		subject = a.subject
	}
	if subject == "" {
		return Principal{}, ErrUnauthenticated
	}
	return Principal{Subject: subject}, nil
}
