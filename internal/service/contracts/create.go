package contracts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/repo"
)

// CreateRequest describes a new draft. Either Parties is set, or Provider and
// Consumers are. In the short form every named party is a required signer,
// the provider included, so activation needs the provider's signature too.
// Use Parties with a non-required provider when only consumers sign.
type CreateRequest struct {
	Actor      string
	Provider   string
	Consumers  []string
	Parties    []domain.Party
	Title      string
	Terms      domain.Metadata
	ValidFrom  time.Time
	ValidUntil *time.Time
}

func (r CreateRequest) parties() []domain.Party {
	if len(r.Parties) > 0 {
		out := make([]domain.Party, len(r.Parties))
		for i, p := range r.Parties {
			p.Identity = strings.TrimSpace(p.Identity)
			out[i] = p
		}
		return out
	}
	out := make([]domain.Party, 0, len(r.Consumers)+1)
	if p := strings.TrimSpace(r.Provider); p != "" {
		out = append(out, domain.Party{Identity: p, Role: domain.RoleProvider, Required: true})
	}
	for _, c := range r.Consumers {
		out = append(out, domain.Party{Identity: strings.TrimSpace(c), Role: domain.RoleConsumer, Required: true})
	}
	return out
}

// Create stores a new contract in Draft.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Contract, error) {
	now := s.now()
	c := domain.Contract{
		ID:         s.newID(),
		Title:      strings.TrimSpace(req.Title),
		Status:     domain.StatusDraft,
		Parties:    req.parties(),
		Terms:      req.Terms.Clone(),
		Signatures: map[string]domain.Signature{},
		Approvals:  map[string]time.Time{},
		ValidFrom:  req.ValidFrom.UTC().Truncate(time.Microsecond),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	if req.ValidFrom.IsZero() {
		c.ValidFrom = now
	}
	if req.ValidUntil != nil {
		until := req.ValidUntil.UTC().Truncate(time.Microsecond)
		c.ValidUntil = &until
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = c.Provider()
	}
	c.CreatedBy = actor

	if err := c.Validate(); err != nil {
		return domain.Contract{}, domain.ErrInvalidContract.Wrap(err)
	}
	if actor == "" {
		return domain.Contract{}, domain.ErrInvalidContract.With("actor is required")
	}
	for _, p := range c.Parties {
		if _, err := s.resolver.Resolve(ctx, p.Identity); err != nil {
			if errors.Is(err, identity.ErrUnknownIdentity) {
				return domain.Contract{}, domain.ErrInvalidContract.Withf("party %q has no registered identity", p.Identity)
			}
			return domain.Contract{}, domain.ErrIdentityUnavailable.Wrap(err)
		}
	}
	decision, err := s.authorize(ctx, actor, domain.CapCreate, c)
	if err != nil {
		return domain.Contract{}, err
	}
	digest, err := canonical.Digest(c)
	if err != nil {
		return domain.Contract{}, domain.ErrInvalidContract.Wrap(err)
	}

	event, err := s.store.Create(ctx, c, audit.Entry{
		ContractID: c.ID,
		Type:       domain.AuditContractCreated,
		Actor:      actor,
		To:         c.Status,
		OccurredAt: now,
		Details: domain.Metadata{
			"authorization": decision.Details(),
			"digest":        hex.EncodeToString(digest),
			"parties":       partyIDs(c.Parties),
		},
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Contract{}, domain.ErrInvalidContract.Wrap(fmt.Errorf("contract %s: %w", c.ID, err))
		}
		return domain.Contract{}, s.storeErr(c.ID, err)
	}
	s.metrics.TransitionCommitted("create", "", c.Status)
	s.logger.Info("contract created",
		"contract_id", c.ID,
		"actor", actor,
		"parties", len(c.Parties),
		"sequence", event.Sequence,
	)
	return c, nil
}

func partyIDs(parties []domain.Party) []string {
	out := make([]string, 0, len(parties))
	for _, p := range parties {
		out = append(out, p.Identity)
	}
	return out
}
