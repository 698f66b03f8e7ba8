package contracts

import (
	"context"
	"crypto/ed25519"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/animus-labs/animus-contracts/internal/authz"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/repo/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc   *Service
	store *memory.Store
	clock *fakeClock
	keys  map[string]ed25519.PrivateKey
}

func newHarness(t *testing.T, identities []string, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		clock: &fakeClock{now: t0},
		keys:  make(map[string]ed25519.PrivateKey, len(identities)),
	}
	kr := identity.NewKeyring()
	for i, id := range identities {
		seed := make([]byte, ed25519.SeedSize)
		seed[0] = byte(i + 1)
		priv := ed25519.NewKeyFromSeed(seed)
		h.keys[id] = priv
		require.NoError(t, kr.Add(identity.Reference{ID: id, PublicKey: priv.Public().(ed25519.PublicKey)}))
	}
	checker, err := authz.NewEvaluator(authz.DefaultPolicy())
	require.NoError(t, err)

	base := []Option{
		WithClock(h.clock),
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	}
	h.svc, err = New(h.store, kr, checker, append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func (h *harness) create(t *testing.T, provider string, consumers ...string) domain.Contract {
	t.Helper()
	until := t0.Add(30 * 24 * time.Hour)
	c, err := h.svc.Create(context.Background(), CreateRequest{
		Provider:   provider,
		Consumers:  consumers,
		Title:      "Telemetry sharing",
		Terms:      domain.Metadata{"purpose": "analytics", "retention_days": 30},
		ValidFrom:  t0,
		ValidUntil: &until,
	})
	require.NoError(t, err)
	return c
}

// approved drives a fresh contract to approved_by_parties.
func (h *harness) approved(t *testing.T, provider string, consumers ...string) domain.Contract {
	t.Helper()
	ctx := context.Background()
	c := h.create(t, provider, consumers...)
	h.step(t, c.ID, domain.EventSubmitForReview, provider, Payload{})
	h.step(t, c.ID, domain.EventBeginReview, provider, Payload{})
	for _, id := range append([]string{provider}, consumers...) {
		h.step(t, c.ID, domain.EventApprove, id, Payload{})
	}
	status, err := h.svc.GetStatus(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusApprovedByParties, status)
	return c
}

func (h *harness) active(t *testing.T, provider string, consumers ...string) domain.Contract {
	t.Helper()
	c := h.approved(t, provider, consumers...)
	for _, id := range append([]string{provider}, consumers...) {
		_, err := h.sign(c.ID, id)
		require.NoError(t, err)
	}
	got, err := h.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.Status)
	return got
}

func (h *harness) step(t *testing.T, id string, ev domain.Event, actor string, p Payload) domain.ContractStatus {
	t.Helper()
	status, err := h.svc.Transition(context.Background(), id, ev, actor, p)
	require.NoError(t, err, "%s by %s", ev, actor)
	return status
}

func (h *harness) sign(id, signer string) (domain.ContractStatus, error) {
	ctx := context.Background()
	digest, err := h.svc.Digest(ctx, id)
	if err != nil {
		return "", err
	}
	return h.svc.Sign(ctx, id, signer, ed25519.Sign(h.keys[signer], digest))
}

func (h *harness) trail(t *testing.T, id string) []domain.AuditEvent {
	t.Helper()
	events, err := h.store.ListEvents(context.Background(), id, 0, 0)
	require.NoError(t, err)
	return events
}
