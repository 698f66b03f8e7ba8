package contracts

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/signatures"
)

// SignRequest is a signature over a caller-supplied digest.
type SignRequest struct {
	Signer    string
	Digest    []byte
	Signature []byte
}

// Sign records signer's signature over the contract's current digest.
func (s *Service) Sign(ctx context.Context, id, signer string, signature []byte) (domain.ContractStatus, error) {
	return s.sign(ctx, id, SignRequest{Signer: signer, Signature: signature}, true)
}

// SignDigest records a signature over req.Digest, which must equal the
// contract's current digest.
func (s *Service) SignDigest(ctx context.Context, id string, req SignRequest) (domain.ContractStatus, error) {
	return s.sign(ctx, id, req, false)
}

func (s *Service) sign(ctx context.Context, id string, req SignRequest, currentDigest bool) (domain.ContractStatus, error) {
	signer := strings.TrimSpace(req.Signer)
	// Resolved outside the exclusive section so a slow resolver does not
	// hold up other callers of the same contract.
	ref, resolveErr := s.resolver.Resolve(ctx, signer)

	c, ev, err := s.WithContract(ctx, id, func(c *domain.Contract, now time.Time) (audit.Entry, error) {
		if resolveErr != nil && c.IsRequiredParty(signer) {
			if errors.Is(resolveErr, identity.ErrUnknownIdentity) {
				e := domain.ErrUnknownSigner.ForContract(c.ID, c.Status).OnEvent(domain.EventRecordSignature).
					With("no key is registered for signer")
				e.Signer = signer
				return audit.Entry{}, e
			}
			return audit.Entry{}, domain.ErrIdentityUnavailable.ForContract(c.ID, c.Status).Wrap(resolveErr)
		}
		digest := req.Digest
		if currentDigest {
			d, err := canonical.Digest(*c)
			if err != nil {
				return audit.Entry{}, domain.ErrInvalidContract.ForContract(c.ID, c.Status).Wrap(err)
			}
			digest = d
		}
		out, err := s.collector.Record(c, signatures.Request{
			Signer:    signer,
			Digest:    digest,
			Signature: req.Signature,
		}, ref.PublicKey, now)
		if err != nil {
			return audit.Entry{}, err
		}
		details := domain.Metadata{
			"authorization": domain.Metadata{
				"allowed": true,
				"method":  "signature",
				"actor":   signer,
			},
			"digest": hex.EncodeToString(digest),
		}
		for k, v := range out.Details {
			details[k] = v
		}
		return audit.Entry{Type: out.AuditType, Actor: signer, Details: details}, nil
	})
	if err != nil {
		s.rejected(id, domain.EventRecordSignature, err)
		return "", err
	}
	s.committed(ctx, domain.EventRecordSignature, c, ev)
	return c.Status, nil
}
