package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/repo"
	"github.com/animus-labs/animus-contracts/internal/signatures"
)

// Get returns a snapshot of the committed contract.
func (s *Service) Get(ctx context.Context, id string) (domain.Contract, error) {
	id = normalizeID(id)
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Contract{}, s.storeErr(id, err)
	}
	return c, nil
}

func (s *Service) GetStatus(ctx context.Context, id string) (domain.ContractStatus, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

func (s *Service) List(ctx context.Context, filter repo.ContractFilter) ([]domain.Contract, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidContract.Withf("status %q is invalid", filter.Status)
	}
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, s.storeErr("", err)
	}
	return out, nil
}

// Digest returns the canonical digest parties sign.
func (s *Service) Digest(ctx context.Context, id string) ([]byte, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return canonical.Digest(c)
}

// AuditTrail returns the ordered events of a contract within rng.
func (s *Service) AuditTrail(ctx context.Context, id string, rng audit.Range) ([]domain.AuditEvent, error) {
	if err := rng.Validate(); err != nil {
		return nil, domain.ErrInvalidContract.Wrap(err)
	}
	id = normalizeID(id)
	events, err := s.recorder.List(ctx, s.store, id, rng)
	if err != nil {
		return nil, s.storeErr(id, err)
	}
	return events, nil
}

// TrailReport summarizes a hash chain check.
type TrailReport struct {
	Events int
	Head   string
	Valid  bool
	Error  string
}

// VerifyAuditTrail recomputes the hash chain of a contract's full trail.
func (s *Service) VerifyAuditTrail(ctx context.Context, id string) (TrailReport, error) {
	events, err := s.AuditTrail(ctx, id, audit.Range{})
	if err != nil {
		return TrailReport{}, err
	}
	report := TrailReport{Events: len(events), Valid: true}
	if len(events) > 0 {
		report.Head = events[len(events)-1].IntegritySHA256
	}
	if err := audit.VerifyChain(events); err != nil {
		if !errors.Is(err, audit.ErrChainBroken) {
			return TrailReport{}, err
		}
		report.Valid = false
		report.Error = err.Error()
	}
	return report, nil
}

// SignatureReport is the outcome of re-verifying stored signatures.
type SignatureReport struct {
	ContractID     string
	Status         domain.ContractStatus
	QuorumComplete bool
	Verified       []string
	Problems       []signatures.Problem
	Pending        []string
}

// VerifySignatures re-checks every stored signature against the current
// digest and the signers' current keys.
func (s *Service) VerifySignatures(ctx context.Context, id string) (SignatureReport, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return SignatureReport{}, err
	}
	var infraErr error
	problems, err := s.collector.Reverify(c, func(signer string) ([]byte, error) {
		ref, err := s.resolver.Resolve(ctx, signer)
		if err != nil {
			if !errors.Is(err, identity.ErrUnknownIdentity) && infraErr == nil {
				infraErr = err
			}
			return nil, err
		}
		return ref.PublicKey, nil
	})
	if err != nil {
		return SignatureReport{}, domain.ErrInvalidContract.ForContract(c.ID, c.Status).Wrap(err)
	}
	if infraErr != nil {
		return SignatureReport{}, domain.ErrIdentityUnavailable.ForContract(c.ID, c.Status).Wrap(fmt.Errorf("resolve signer: %w", infraErr))
	}
	failed := make(map[string]bool, len(problems))
	for _, p := range problems {
		failed[p.Signer] = true
	}
	report := SignatureReport{
		ContractID:     c.ID,
		Status:         c.Status,
		QuorumComplete: c.QuorumComplete(),
		Verified:       make([]string, 0, len(c.Signatures)),
		Problems:       problems,
		Pending:        c.PendingSigners(),
	}
	for _, signer := range c.RequiredParties() {
		if _, ok := c.Signatures[signer]; ok && !failed[signer] {
			report.Verified = append(report.Verified, signer)
		}
	}
	return report, nil
}
