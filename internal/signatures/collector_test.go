package signatures

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type party struct {
	id   string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newParty(id string, seed byte) party {
	priv := ed25519.NewKeyFromSeed(bytesOf(seed))
	return party{id: id, pub: priv.Public().(ed25519.PublicKey), priv: priv}
}

func bytesOf(b byte) []byte {
	out := make([]byte, ed25519.SeedSize)
	for i := range out {
		out[i] = b
	}
	return out
}

func fixture(t *testing.T) (domain.Contract, map[string]party) {
	t.Helper()
	parties := map[string]party{
		"provider-a": newParty("provider-a", 1),
		"consumer-b": newParty("consumer-b", 2),
		"consumer-c": newParty("consumer-c", 3),
		"observer-d": newParty("observer-d", 4),
	}
	c := domain.Contract{
		ID:     "c-1",
		Status: domain.StatusApprovedByParties,
		Parties: []domain.Party{
			{Identity: "provider-a", Role: domain.RoleProvider, Required: true},
			{Identity: "consumer-b", Role: domain.RoleConsumer, Required: true},
			{Identity: "consumer-c", Role: domain.RoleConsumer, Required: true},
			{Identity: "observer-d", Role: domain.RoleConsumer},
		},
		Terms:      domain.Metadata{"purpose": "analytics"},
		Signatures: map[string]domain.Signature{},
		ValidFrom:  now.Add(-time.Hour),
		Version:    4,
	}
	return c, parties
}

func request(t *testing.T, c domain.Contract, p party) Request {
	t.Helper()
	digest, err := canonical.Digest(c)
	if err != nil {
		t.Fatalf("Digest() err=%v", err)
	}
	return Request{Signer: p.id, Digest: digest, Signature: ed25519.Sign(p.priv, digest)}
}

func TestRecordFailureKinds(t *testing.T) {
	c, parties := fixture(t)
	col := New(nil)

	good := request(t, c, parties["consumer-b"])
	if _, err := col.Record(&c, good, parties["consumer-b"].pub, now); err != nil {
		t.Fatalf("Record() err=%v", err)
	}

	stale := request(t, c, parties["consumer-c"])
	stale.Digest = append([]byte(nil), stale.Digest...)
	stale.Digest[0] ^= 0xff

	forged := request(t, c, parties["consumer-c"])
	forged.Signature = ed25519.Sign(parties["provider-a"].priv, forged.Digest)

	cases := []struct {
		name string
		req  Request
		pub  []byte
		want error
	}{
		{"optional party", request(t, c, parties["observer-d"]), parties["observer-d"].pub, domain.ErrUnknownSigner},
		{"stranger", Request{Signer: "mallory"}, nil, domain.ErrUnknownSigner},
		{"duplicate", good, parties["consumer-b"].pub, domain.ErrAlreadySigned},
		{"stale digest", stale, parties["consumer-c"].pub, domain.ErrStaleDigest},
		{"wrong key", forged, parties["consumer-c"].pub, domain.ErrInvalidSignature},
		{"malformed key", request(t, c, parties["consumer-c"]), []byte{1, 2, 3}, domain.ErrInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := c.Clone()
			_, err := col.Record(&c, tc.req, tc.pub, now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Record() err=%v, want %v", err, tc.want)
			}
			if len(c.Signatures) != len(before.Signatures) || c.Status != before.Status {
				t.Fatalf("contract mutated on failure")
			}
		})
	}
}

func TestRecordRequiresApprovedStatus(t *testing.T) {
	c, parties := fixture(t)
	c.Status = domain.StatusUnderReview
	_, err := New(nil).Record(&c, request(t, c, parties["consumer-b"]), parties["consumer-b"].pub, now)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Record() err=%v", err)
	}
	if len(c.Signatures) != 0 {
		t.Fatalf("signature kept after state machine rejection")
	}
}

func TestQuorumOverAllSubsets(t *testing.T) {
	required := []string{"provider-a", "consumer-b", "consumer-c"}
	for mask := 0; mask < 1<<len(required); mask++ {
		t.Run(fmt.Sprintf("mask=%03b", mask), func(t *testing.T) {
			c, parties := fixture(t)
			col := New(nil)
			for i, id := range required {
				if mask&(1<<i) == 0 {
					continue
				}
				if _, err := col.Record(&c, request(t, c, parties[id]), parties[id].pub, now); err != nil {
					t.Fatalf("Record(%s) err=%v", id, err)
				}
			}
			all := mask == 1<<len(required)-1
			if all != (c.Status == domain.StatusActive) {
				t.Fatalf("mask=%03b status=%s", mask, c.Status)
			}
			if all != c.QuorumComplete() {
				t.Fatalf("QuorumComplete()=%v", c.QuorumComplete())
			}
			if !all && c.Status != domain.StatusApprovedByParties {
				t.Fatalf("partial set moved status to %s", c.Status)
			}
		})
	}
}

func TestReverify(t *testing.T) {
	c, parties := fixture(t)
	col := New(nil)
	for _, id := range []string{"provider-a", "consumer-b"} {
		if _, err := col.Record(&c, request(t, c, parties[id]), parties[id].pub, now); err != nil {
			t.Fatalf("Record(%s) err=%v", id, err)
		}
	}
	keys := func(id string) ([]byte, error) {
		if id == "consumer-b" {
			return parties["provider-a"].pub, nil
		}
		return parties[id].pub, nil
	}
	problems, err := col.Reverify(c, keys)
	if err != nil {
		t.Fatalf("Reverify() err=%v", err)
	}
	if len(problems) != 1 || problems[0].Signer != "consumer-b" || problems[0].Reason != "invalid_signature" {
		t.Fatalf("problems=%+v", problems)
	}

	c.Terms = domain.Metadata{"purpose": "other"}
	problems, _ = col.Reverify(c, keys)
	if len(problems) != 2 || problems[0].Reason != "stale_digest" {
		t.Fatalf("problems after terms change=%+v", problems)
	}
}
