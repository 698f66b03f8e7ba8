package authz

import (
	"context"
	"testing"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

func contract() domain.Contract {
	return domain.Contract{
		ID: "c-1",
		Parties: []domain.Party{
			{Identity: "provider-a", Role: domain.RoleProvider, Required: true},
			{Identity: "consumer-b", Role: domain.RoleConsumer, Required: true},
		},
	}
}

func TestDefaultPolicy(t *testing.T) {
	ev, err := NewEvaluator(DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEvaluator() err=%v", err)
	}
	cases := []struct {
		actor string
		cap   domain.Capability
		want  bool
	}{
		{"provider-a", domain.CapSubmit, true},
		{"consumer-b", domain.CapSubmit, false},
		{"consumer-b", domain.CapApprove, true},
		{"outsider", domain.CapApprove, false},
		{"outsider", domain.CapCreate, true},
		{"system", domain.CapExpire, true},
		{"provider-a", domain.CapExpire, false},
		{"", domain.CapCreate, false},
	}
	for _, tc := range cases {
		d, err := ev.Check(context.Background(), tc.actor, tc.cap, contract())
		if err != nil {
			t.Fatalf("Check() err=%v", err)
		}
		if d.Allowed != tc.want {
			t.Fatalf("Check(%q, %s)=%v, want %v", tc.actor, tc.cap, d.Allowed, tc.want)
		}
		if d.Allowed && d.Rule == "" {
			t.Fatalf("allowed decision without rule")
		}
	}
}

func TestParsePolicyIdentityGrant(t *testing.T) {
	p, err := ParsePolicy([]byte(`
schema: animus.contracts.authz.v1
grants:
  - id: ops-terminate
    identity: ops-team
    capabilities: [contract.terminate, contract.suspend]
`))
	if err != nil {
		t.Fatalf("ParsePolicy() err=%v", err)
	}
	ev, err := NewEvaluator(p)
	if err != nil {
		t.Fatalf("NewEvaluator() err=%v", err)
	}
	d, _ := ev.Check(context.Background(), "ops-team", domain.CapTerminate, contract())
	if !d.Allowed || d.Rule != "ops-terminate" {
		t.Fatalf("decision=%+v", d)
	}
	d, _ = ev.Check(context.Background(), "provider-a", domain.CapTerminate, contract())
	if d.Allowed {
		t.Fatalf("provider should not hold terminate under this policy")
	}
	details := d.Details()
	if details["allowed"] != false || details["capability"] != "contract.terminate" {
		t.Fatalf("details=%+v", details)
	}
}

func TestPolicyValidate(t *testing.T) {
	cases := map[string]string{
		"schema":       "schema: v0\ngrants: [{id: a, role: '*', capabilities: [contract.create]}]",
		"no grants":    "schema: animus.contracts.authz.v1\ngrants: []",
		"both":         "schema: animus.contracts.authz.v1\ngrants: [{id: a, role: '*', identity: x, capabilities: [contract.create]}]",
		"bad role":     "schema: animus.contracts.authz.v1\ngrants: [{id: a, role: admin, capabilities: [contract.create]}]",
		"bad cap":      "schema: animus.contracts.authz.v1\ngrants: [{id: a, role: '*', capabilities: [contract.delete]}]",
		"duplicate id": "schema: animus.contracts.authz.v1\ngrants: [{id: a, role: '*', capabilities: [contract.create]}, {id: a, role: system, capabilities: [contract.expire]}]",
	}
	for name, doc := range cases {
		if _, err := ParsePolicy([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
