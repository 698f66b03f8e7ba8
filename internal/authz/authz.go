// Package authz decides whether an actor holds a capability on a contract.
package authz

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

const PolicySchemaV1 = "animus.contracts.authz.v1"

// Subject roles that grants can target besides the party roles.
const (
	RoleAny    = "*"
	RoleSystem = "system"
)

// Decision is the outcome of one capability check. It is recorded verbatim
// in the audit event of the transition it guarded.
type Decision struct {
	Allowed    bool
	Capability domain.Capability
	Actor      string
	Rule       string
}

// Details renders d for audit event details.
func (d Decision) Details() domain.Metadata {
	out := domain.Metadata{
		"allowed":    d.Allowed,
		"capability": string(d.Capability),
		"actor":      d.Actor,
	}
	if d.Rule != "" {
		out["rule"] = d.Rule
	}
	return out
}

// Checker evaluates capabilities. Implementations must be safe for concurrent use.
type Checker interface {
	Check(ctx context.Context, actor string, capability domain.Capability, contract domain.Contract) (Decision, error)
}

// Grant gives a subject a set of capabilities. Exactly one of Role or
// Identity is set.
type Grant struct {
	ID           string   `yaml:"id"`
	Role         string   `yaml:"role,omitempty"`
	Identity     string   `yaml:"identity,omitempty"`
	Capabilities []string `yaml:"capabilities"`
}

// Policy is a static grant table.
type Policy struct {
	Schema string  `yaml:"schema"`
	Grants []Grant `yaml:"grants"`
}

func (p Policy) Validate() error {
	if strings.TrimSpace(p.Schema) != PolicySchemaV1 {
		return fmt.Errorf("policy.schema must be %q", PolicySchemaV1)
	}
	if len(p.Grants) == 0 {
		return fmt.Errorf("policy.grants must be non-empty")
	}
	seen := make(map[string]struct{}, len(p.Grants))
	for i, g := range p.Grants {
		id := strings.TrimSpace(g.ID)
		if id == "" {
			return fmt.Errorf("policy.grants[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("policy.grants[%d].id must be unique (duplicate %q)", i, id)
		}
		seen[id] = struct{}{}
		role := strings.TrimSpace(g.Role)
		ident := strings.TrimSpace(g.Identity)
		if (role == "") == (ident == "") {
			return fmt.Errorf("policy.grants[%d] must set exactly one of role or identity", i)
		}
		if role != "" && !knownRole(role) {
			return fmt.Errorf("policy.grants[%d].role unsupported: %q", i, g.Role)
		}
		if len(g.Capabilities) == 0 {
			return fmt.Errorf("policy.grants[%d].capabilities must be non-empty", i)
		}
		for j, c := range g.Capabilities {
			if !domain.Capability(strings.TrimSpace(c)).Valid() {
				return fmt.Errorf("policy.grants[%d].capabilities[%d] unsupported: %q", i, j, c)
			}
		}
	}
	return nil
}

func knownRole(role string) bool {
	switch role {
	case RoleAny, RoleSystem, string(domain.RoleProvider), string(domain.RoleConsumer):
		return true
	default:
		return false
	}
}

// ParsePolicy decodes and validates a YAML policy.
func ParsePolicy(input []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(input, &p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a policy file.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(raw)
}

// DefaultPolicy lets any identity draft contracts, lets parties drive the
// lifecycle of contracts they are bound to, and reserves expiry for the
// system actor.
func DefaultPolicy() Policy {
	return Policy{
		Schema: PolicySchemaV1,
		Grants: []Grant{
			{ID: "anyone-create", Role: RoleAny, Capabilities: []string{string(domain.CapCreate)}},
			{ID: "provider", Role: string(domain.RoleProvider), Capabilities: []string{
				string(domain.CapSubmit),
				string(domain.CapReview),
				string(domain.CapApprove),
				string(domain.CapAmend),
				string(domain.CapSuspend),
				string(domain.CapResume),
				string(domain.CapTerminate),
				string(domain.CapComplete),
			}},
			{ID: "consumer", Role: string(domain.RoleConsumer), Capabilities: []string{
				string(domain.CapReview),
				string(domain.CapApprove),
				string(domain.CapSuspend),
				string(domain.CapTerminate),
				string(domain.CapComplete),
			}},
			{ID: "system", Role: RoleSystem, Capabilities: []string{string(domain.CapExpire)}},
		},
	}
}

// Evaluator is a Checker backed by a Policy.
type Evaluator struct {
	grants []Grant
}

// NewEvaluator validates p and returns an Evaluator.
func NewEvaluator(p Policy) (*Evaluator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	grants := append([]Grant(nil), p.Grants...)
	sort.SliceStable(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return &Evaluator{grants: grants}, nil
}

func (e *Evaluator) Check(_ context.Context, actor string, capability domain.Capability, c domain.Contract) (Decision, error) {
	actor = strings.TrimSpace(actor)
	d := Decision{Capability: capability, Actor: actor}
	if actor == "" {
		return d, nil
	}
	roles := subjectRoles(actor, c)
	for _, g := range e.grants {
		if !matches(g, actor, roles) || !holds(g, capability) {
			continue
		}
		d.Allowed = true
		d.Rule = g.ID
		return d, nil
	}
	return d, nil
}

func subjectRoles(actor string, c domain.Contract) map[string]bool {
	roles := map[string]bool{RoleAny: true}
	if actor == domain.SystemActor {
		roles[RoleSystem] = true
		return roles
	}
	if p, ok := c.Party(actor); ok {
		roles[string(p.Role)] = true
	}
	return roles
}

func matches(g Grant, actor string, roles map[string]bool) bool {
	if ident := strings.TrimSpace(g.Identity); ident != "" {
		return ident == actor
	}
	return roles[strings.TrimSpace(g.Role)]
}

func holds(g Grant, capability domain.Capability) bool {
	for _, c := range g.Capabilities {
		if domain.Capability(strings.TrimSpace(c)) == capability {
			return true
		}
	}
	return false
}

// AllowAll is a Checker that grants everything. Intended for tests and dev mode.
type AllowAll struct{}

func (AllowAll) Check(_ context.Context, actor string, capability domain.Capability, _ domain.Contract) (Decision, error) {
	return Decision{Allowed: true, Capability: capability, Actor: actor, Rule: "allow-all"}, nil
}
