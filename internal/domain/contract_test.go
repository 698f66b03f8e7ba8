package domain

import (
	"errors"
	"testing"
	"time"
)

func sampleContract() Contract {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(365 * 24 * time.Hour)
	return Contract{
		ID:     "c-1",
		Status: StatusDraft,
		Parties: []Party{
			{Identity: "provider-a", Role: RoleProvider},
			{Identity: "consumer-b", Role: RoleConsumer, Required: true},
		},
		Terms:      Metadata{"purpose": "analytics", "limits": map[string]any{"cpu": 4}},
		Signatures: map[string]Signature{},
		Approvals:  map[string]time.Time{},
		ValidFrom:  from,
		ValidUntil: &until,
		CreatedAt:  from,
		CreatedBy:  "provider-a",
		UpdatedAt:  from,
		Version:    1,
	}
}

func TestContractValidate(t *testing.T) {
	c := sampleContract()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	bad := c.Clone()
	bad.ValidUntil = &bad.ValidFrom
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error when valid_until == valid_from")
	}

	bad = c.Clone()
	bad.Parties = append(bad.Parties, Party{Identity: "consumer-b", Role: RoleConsumer})
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for duplicate party")
	}

	bad = c.Clone()
	bad.Parties = []Party{{Identity: "provider-a", Role: RoleProvider}, {Identity: "consumer-b", Role: RoleConsumer}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error without a required consumer")
	}
}

func TestContractCloneIsDeep(t *testing.T) {
	c := sampleContract()
	c.Signatures["consumer-b"] = Signature{Signer: "consumer-b", Digest: []byte{1, 2}, Signature: []byte{3, 4}}

	cp := c.Clone()
	cp.Terms["purpose"] = "changed"
	cp.Terms["limits"].(map[string]any)["cpu"] = 8
	sig := cp.Signatures["consumer-b"]
	sig.Signature[0] = 9
	cp.Parties[0].Identity = "someone-else"
	*cp.ValidUntil = cp.ValidUntil.Add(time.Hour)

	if c.Terms["purpose"] != "analytics" {
		t.Fatalf("terms shared with clone")
	}
	if c.Terms["limits"].(map[string]any)["cpu"] != 4 {
		t.Fatalf("nested terms shared with clone")
	}
	if c.Signatures["consumer-b"].Signature[0] != 3 {
		t.Fatalf("signature bytes shared with clone")
	}
	if c.Parties[0].Identity != "provider-a" {
		t.Fatalf("parties shared with clone")
	}
	if c.ValidUntil.Equal(*cp.ValidUntil) {
		t.Fatalf("valid_until shared with clone")
	}
}

func TestQuorumComplete(t *testing.T) {
	c := sampleContract()
	c.Parties = append(c.Parties, Party{Identity: "consumer-c", Role: RoleConsumer, Required: true})
	if c.QuorumComplete() {
		t.Fatalf("quorum should be incomplete without signatures")
	}
	c.Signatures["consumer-b"] = Signature{Signer: "consumer-b"}
	if c.QuorumComplete() {
		t.Fatalf("quorum should be incomplete with one of two signatures")
	}
	if got := c.PendingSigners(); len(got) != 1 || got[0] != "consumer-c" {
		t.Fatalf("PendingSigners()=%v", got)
	}
	c.Signatures["consumer-c"] = Signature{Signer: "consumer-c"}
	if !c.QuorumComplete() {
		t.Fatalf("quorum should be complete")
	}
}

func TestEnsureContractSuccessor(t *testing.T) {
	before := sampleContract()
	before.Signatures["consumer-b"] = Signature{Signer: "consumer-b", Digest: []byte{1}, Signature: []byte{2}}

	after := before.Clone()
	after.Version = 2
	after.UpdatedAt = before.UpdatedAt.Add(time.Second)
	if err := EnsureContractSuccessor(before, after); err != nil {
		t.Fatalf("EnsureContractSuccessor() err=%v", err)
	}

	skipped := after.Clone()
	skipped.Version = 3
	if err := EnsureContractSuccessor(before, skipped); err == nil {
		t.Fatalf("expected error when version skips")
	}

	backwards := after.Clone()
	backwards.UpdatedAt = before.UpdatedAt.Add(-time.Second)
	if err := EnsureContractSuccessor(before, backwards); err == nil {
		t.Fatalf("expected error when updated_at moves backwards")
	}

	dropped := after.Clone()
	delete(dropped.Signatures, "consumer-b")
	if err := EnsureContractSuccessor(before, dropped); err == nil {
		t.Fatalf("expected error when a signature disappears without a terms change")
	}

	amended := dropped.Clone()
	amended.Terms = Metadata{"purpose": "research"}
	if err := EnsureContractSuccessor(before, amended); err != nil {
		t.Fatalf("terms change may clear signatures: %v", err)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := ErrInvalidTransition.ForContract("c-1", StatusDraft).OnEvent(EventExpire).With("no matching transition")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected errors.Is to match on kind")
	}
	if errors.Is(err, ErrStaleDigest) {
		t.Fatalf("unexpected match on different kind")
	}
	aborted := ErrTransitionAborted.Wrap(ErrAuditWriteFailed.Wrap(errors.New("disk full")))
	if !errors.Is(aborted, ErrAuditWriteFailed) {
		t.Fatalf("expected wrapped audit failure to match")
	}
	if KindOf(aborted) != KindTransitionAborted {
		t.Fatalf("KindOf()=%q", KindOf(aborted))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty kind for plain errors")
	}
}
