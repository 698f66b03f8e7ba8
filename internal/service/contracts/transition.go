package contracts

import (
	"context"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/lifecycle"
)

// Payload carries event-specific input.
type Payload struct {
	Reason    string
	Fulfilled bool
	Terms     domain.Metadata
}

// Transition applies a non-signature event on behalf of actor.
func (s *Service) Transition(ctx context.Context, id string, event domain.Event, actor string, payload Payload) (domain.ContractStatus, error) {
	if event == domain.EventRecordSignature {
		err := domain.ErrInvalidTransition.ForContract(id, "").OnEvent(event).With("signatures are recorded through Sign")
		s.rejected(id, event, err)
		return "", err
	}
	actor = strings.TrimSpace(actor)
	c, ev, err := s.WithContract(ctx, id, func(c *domain.Contract, now time.Time) (audit.Entry, error) {
		if err := lifecycle.Check(*c, event); err != nil {
			return audit.Entry{}, err
		}
		details := domain.Metadata{}
		if capability := lifecycle.Capability(event); capability != "" {
			decision, err := s.authorize(ctx, actor, capability, *c)
			if err != nil {
				return audit.Entry{}, err
			}
			details["authorization"] = decision.Details()
		}
		out, err := lifecycle.Apply(c, lifecycle.Input{
			Event:     event,
			Actor:     actor,
			Now:       now,
			Reason:    payload.Reason,
			Fulfilled: payload.Fulfilled,
			Terms:     payload.Terms,
		})
		if err != nil {
			return audit.Entry{}, err
		}
		for k, v := range out.Details {
			details[k] = v
		}
		return audit.Entry{Type: out.AuditType, Actor: actor, Details: details}, nil
	})
	if err != nil {
		s.rejected(id, event, err)
		return "", err
	}
	s.committed(ctx, event, c, ev)
	return c.Status, nil
}

// AmendTerms replaces the terms of a contract that is not yet active. Recorded
// signatures and approvals are discarded and the contract returns to Draft.
func (s *Service) AmendTerms(ctx context.Context, id, actor string, terms domain.Metadata) (domain.ContractStatus, error) {
	return s.Transition(ctx, id, domain.EventAmendTerms, actor, Payload{Terms: terms})
}
