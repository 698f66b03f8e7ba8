// Package signatures records party signatures on a contract working copy.
package signatures

import (
	"bytes"
	"crypto/subtle"
	"sort"
	"time"

	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/lifecycle"
	"github.com/animus-labs/animus-contracts/internal/signing"
)

// Request is one party's signature submission.
type Request struct {
	Signer    string
	Digest    []byte
	Signature []byte
}

// VerifyFunc matches signing.Verify.
type VerifyFunc func(publicKey, digest, signature []byte) error

// Collector validates signatures and hands accepted ones to the state machine.
type Collector struct {
	verify VerifyFunc
}

// New returns a Collector using verify, or signing.Verify when nil.
func New(verify VerifyFunc) *Collector {
	if verify == nil {
		verify = signing.Verify
	}
	return &Collector{verify: verify}
}

// Record checks req against c and, when accepted, adds the signature and
// applies record_signature. c is modified only on success.
//
// Check order: unknown signer, already signed, stale digest, invalid
// signature, then the state machine.
func (col *Collector) Record(c *domain.Contract, req Request, publicKey []byte, now time.Time) (lifecycle.Outcome, error) {
	if c == nil {
		return lifecycle.Outcome{}, domain.ErrInvalidContract.With("contract is required")
	}
	if !c.IsRequiredParty(req.Signer) {
		return lifecycle.Outcome{}, signerErr(domain.ErrUnknownSigner, c, req.Signer, "signer is not a required party")
	}
	if _, ok := c.Signatures[req.Signer]; ok {
		return lifecycle.Outcome{}, signerErr(domain.ErrAlreadySigned, c, req.Signer, "party has already signed")
	}
	current, err := canonical.Digest(*c)
	if err != nil {
		return lifecycle.Outcome{}, domain.ErrInvalidContract.ForContract(c.ID, c.Status).Wrap(err)
	}
	if len(req.Digest) != len(current) || subtle.ConstantTimeCompare(req.Digest, current) != 1 {
		return lifecycle.Outcome{}, signerErr(domain.ErrStaleDigest, c, req.Signer, "digest does not match current contract content")
	}
	if err := col.verify(publicKey, req.Digest, req.Signature); err != nil {
		e := signerErr(domain.ErrInvalidSignature, c, req.Signer, "signature verification failed")
		return lifecycle.Outcome{}, e.Wrap(err)
	}

	if c.Signatures == nil {
		c.Signatures = map[string]domain.Signature{}
	}
	c.Signatures[req.Signer] = domain.Signature{
		Signer:    req.Signer,
		Digest:    bytes.Clone(req.Digest),
		Signature: bytes.Clone(req.Signature),
		SignedAt:  now,
	}
	out, err := lifecycle.Apply(c, lifecycle.Input{
		Event:  domain.EventRecordSignature,
		Actor:  req.Signer,
		Signer: req.Signer,
		Now:    now,
	})
	if err != nil {
		delete(c.Signatures, req.Signer)
		return lifecycle.Outcome{}, err
	}
	return out, nil
}

func signerErr(kind *domain.Error, c *domain.Contract, signer, msg string) *domain.Error {
	e := kind.ForContract(c.ID, c.Status).OnEvent(domain.EventRecordSignature).With(msg)
	e.Signer = signer
	return e
}

// Problem describes one stored signature that no longer verifies.
type Problem struct {
	Signer string
	Reason string
}

// Reverify checks every stored signature against the current digest and the
// supplied key lookup.
func (col *Collector) Reverify(c domain.Contract, keyOf func(identity string) ([]byte, error)) ([]Problem, error) {
	current, err := canonical.Digest(c)
	if err != nil {
		return nil, err
	}
	problems := make([]Problem, 0)
	for _, signer := range sortedSigners(c) {
		sig := c.Signatures[signer]
		if !bytes.Equal(sig.Digest, current) {
			problems = append(problems, Problem{Signer: signer, Reason: "stale_digest"})
			continue
		}
		key, err := keyOf(signer)
		if err != nil {
			problems = append(problems, Problem{Signer: signer, Reason: "identity_unavailable"})
			continue
		}
		if err := col.verify(key, sig.Digest, sig.Signature); err != nil {
			problems = append(problems, Problem{Signer: signer, Reason: "invalid_signature"})
		}
	}
	return problems, nil
}

func sortedSigners(c domain.Contract) []string {
	out := make([]string, 0, len(c.Signatures))
	for id := range c.Signatures {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
