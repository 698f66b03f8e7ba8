package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PartyRole is the role an identity plays in a contract.
type PartyRole string

const (
	RoleProvider PartyRole = "provider"
	RoleConsumer PartyRole = "consumer"
)

func (r PartyRole) Valid() bool {
	return r == RoleProvider || r == RoleConsumer
}

// Party names an identity bound to a contract. Required parties must sign
// before the contract can become active.
type Party struct {
	Identity string    `json:"identity"`
	Role     PartyRole `json:"role"`
	Required bool      `json:"required"`
}

// Signature is one party's attestation over the contract digest.
type Signature struct {
	Signer    string
	Digest    []byte
	Signature []byte
	SignedAt  time.Time
}

func (s Signature) clone() Signature {
	s.Digest = append([]byte(nil), s.Digest...)
	s.Signature = append([]byte(nil), s.Signature...)
	return s
}

// Contract is the central lifecycle entity. The contract store owns the
// record; everything else works on copies returned by Clone.
type Contract struct {
	ID         string
	Title      string
	Status     ContractStatus
	Parties    []Party
	Terms      Metadata
	Signatures map[string]Signature
	Approvals  map[string]time.Time
	ValidFrom  time.Time
	ValidUntil *time.Time
	CreatedAt  time.Time
	CreatedBy  string
	UpdatedAt  time.Time
	Version    int64
}

// Clone returns a deep copy that shares no mutable state with c.
func (c Contract) Clone() Contract {
	out := c
	out.Parties = append([]Party(nil), c.Parties...)
	out.Terms = c.Terms.Clone()
	out.Signatures = make(map[string]Signature, len(c.Signatures))
	for k, v := range c.Signatures {
		out.Signatures[k] = v.clone()
	}
	out.Approvals = make(map[string]time.Time, len(c.Approvals))
	for k, v := range c.Approvals {
		out.Approvals[k] = v
	}
	if c.ValidUntil != nil {
		until := *c.ValidUntil
		out.ValidUntil = &until
	}
	return out
}

// Party returns the party bound to identity.
func (c Contract) Party(identity string) (Party, bool) {
	for _, p := range c.Parties {
		if p.Identity == identity {
			return p, true
		}
	}
	return Party{}, false
}

// IsRequiredParty reports whether identity is a required signer.
func (c Contract) IsRequiredParty(identity string) bool {
	p, ok := c.Party(identity)
	return ok && p.Required
}

// RequiredParties returns required signer identities sorted for stable output.
func (c Contract) RequiredParties() []string {
	out := make([]string, 0, len(c.Parties))
	for _, p := range c.Parties {
		if p.Required {
			out = append(out, p.Identity)
		}
	}
	sort.Strings(out)
	return out
}

// QuorumComplete reports whether every required party has a recorded signature.
func (c Contract) QuorumComplete() bool {
	required := c.RequiredParties()
	if len(required) == 0 {
		return false
	}
	for _, id := range required {
		if _, ok := c.Signatures[id]; !ok {
			return false
		}
	}
	return true
}

// ApprovalsComplete reports whether every required party recorded approval.
func (c Contract) ApprovalsComplete() bool {
	required := c.RequiredParties()
	if len(required) == 0 {
		return false
	}
	for _, id := range required {
		if _, ok := c.Approvals[id]; !ok {
			return false
		}
	}
	return true
}

// PendingSigners lists required parties that have not signed yet.
func (c Contract) PendingSigners() []string {
	out := make([]string, 0)
	for _, id := range c.RequiredParties() {
		if _, ok := c.Signatures[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Provider returns the first provider party's identity.
func (c Contract) Provider() string {
	for _, p := range c.Parties {
		if p.Role == RoleProvider {
			return p.Identity
		}
	}
	return ""
}

// Expired reports whether the validity window closed before now.
func (c Contract) Expired(now time.Time) bool {
	return c.ValidUntil != nil && now.After(*c.ValidUntil)
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("contract id is required")
	}
	if !c.Status.Valid() {
		return fmt.Errorf("status %q is invalid", c.Status)
	}
	if err := ValidateParties(c.Parties); err != nil {
		return err
	}
	if c.ValidFrom.IsZero() {
		return errors.New("valid_from is required")
	}
	if c.ValidUntil != nil && !c.ValidUntil.After(c.ValidFrom) {
		return errors.New("valid_until must be after valid_from")
	}
	if c.Version < 1 {
		return errors.New("version must be >= 1")
	}
	return nil
}

// ValidateParties enforces party shape and identity uniqueness.
func ValidateParties(parties []Party) error {
	if len(parties) == 0 {
		return errors.New("parties are required")
	}
	seen := make(map[string]struct{}, len(parties))
	var providers, requiredConsumers int
	for i, p := range parties {
		id := strings.TrimSpace(p.Identity)
		if id == "" {
			return fmt.Errorf("parties[%d].identity is required", i)
		}
		if id != p.Identity {
			return fmt.Errorf("parties[%d].identity must not contain surrounding whitespace", i)
		}
		if !p.Role.Valid() {
			return fmt.Errorf("parties[%d].role %q is invalid", i, p.Role)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("party %q is listed more than once", id)
		}
		seen[id] = struct{}{}
		switch p.Role {
		case RoleProvider:
			providers++
		case RoleConsumer:
			if p.Required {
				requiredConsumers++
			}
		}
	}
	if providers == 0 {
		return errors.New("a provider party is required")
	}
	if requiredConsumers == 0 {
		return errors.New("at least one required consumer party is required")
	}
	return nil
}
