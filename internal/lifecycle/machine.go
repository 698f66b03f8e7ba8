package lifecycle

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

// Input carries everything a transition may depend on besides the contract.
type Input struct {
	Event  domain.Event
	Actor  string
	Now    time.Time
	Reason string
	// Fulfilled marks obligations as met for the complete event.
	Fulfilled bool
	// Terms is the replacement payload for amend_terms.
	Terms domain.Metadata
	// Signer names the party whose signature was just added for record_signature.
	Signer string
}

// Outcome describes an accepted transition.
type Outcome struct {
	From      domain.ContractStatus
	To        domain.ContractStatus
	AuditType domain.AuditEventType
	Details   domain.Metadata
}

type rule struct {
	from       []domain.ContractStatus
	capability domain.Capability
	apply      func(c *domain.Contract, in Input) (Outcome, error)
}

var rules = map[domain.Event]rule{
	domain.EventSubmitForReview: {
		from:       []domain.ContractStatus{domain.StatusDraft},
		capability: domain.CapSubmit,
		apply:      submitForReview,
	},
	domain.EventBeginReview: {
		from:       []domain.ContractStatus{domain.StatusPendingReview},
		capability: domain.CapReview,
		apply:      beginReview,
	},
	domain.EventApprove: {
		from:       []domain.ContractStatus{domain.StatusUnderReview},
		capability: domain.CapApprove,
		apply:      approve,
	},
	domain.EventRecordSignature: {
		from:  []domain.ContractStatus{domain.StatusApprovedByParties},
		apply: recordSignature,
	},
	domain.EventSuspend: {
		from:       []domain.ContractStatus{domain.StatusApprovedByParties, domain.StatusActive},
		capability: domain.CapSuspend,
		apply:      suspend,
	},
	domain.EventResume: {
		from:       []domain.ContractStatus{domain.StatusSuspended},
		capability: domain.CapResume,
		apply:      resume,
	},
	domain.EventTerminate: {
		from:       []domain.ContractStatus{domain.StatusActive},
		capability: domain.CapTerminate,
		apply:      terminate,
	},
	domain.EventExpire: {
		from:       []domain.ContractStatus{domain.StatusActive},
		capability: domain.CapExpire,
		apply:      expire,
	},
	domain.EventComplete: {
		from:       []domain.ContractStatus{domain.StatusActive},
		capability: domain.CapComplete,
		apply:      complete,
	},
	domain.EventAmendTerms: {
		from: []domain.ContractStatus{
			domain.StatusDraft,
			domain.StatusPendingReview,
			domain.StatusUnderReview,
			domain.StatusApprovedByParties,
		},
		capability: domain.CapAmend,
		apply:      amendTerms,
	},
}

// Capability returns the capability required for ev. Events that carry their
// own proof of authority, such as record_signature, return "".
func Capability(ev domain.Event) domain.Capability {
	return rules[ev].capability
}

// Allows reports whether the table has a row for (from, ev).
func Allows(from domain.ContractStatus, ev domain.Event) bool {
	r, ok := rules[ev]
	if !ok {
		return false
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// Events lists the events with a row leaving from, sorted by name.
func Events(from domain.ContractStatus) []domain.Event {
	out := make([]domain.Event, 0)
	for ev := range rules {
		if Allows(from, ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Apply validates and applies in.Event to c. On error c is left untouched.
func Apply(c *domain.Contract, in Input) (Outcome, error) {
	if c == nil {
		return Outcome{}, domain.ErrInvalidContract.With("contract is required")
	}
	if err := Check(*c, in.Event); err != nil {
		return Outcome{}, err
	}
	from := c.Status
	out, err := rules[in.Event].apply(c, in)
	if err != nil {
		return Outcome{}, err
	}
	out.From = from
	c.Status = out.To
	if out.Details == nil {
		out.Details = domain.Metadata{}
	}
	out.Details["event"] = string(in.Event)
	return out, nil
}

// Check returns InvalidTransition, naming the current status and ev, when the
// table has no row for ev from c's status. Preconditions are not evaluated.
func Check(c domain.Contract, ev domain.Event) error {
	if Allows(c.Status, ev) {
		return nil
	}
	if c.Status.Terminal() {
		return reject(&c, ev, "contract is in a terminal status")
	}
	return reject(&c, ev, "no transition for event from current status")
}

func reject(c *domain.Contract, ev domain.Event, reason string) error {
	return domain.ErrInvalidTransition.ForContract(c.ID, c.Status).OnEvent(ev).With(reason)
}

func submitForReview(c *domain.Contract, in Input) (Outcome, error) {
	if err := domain.ValidateParties(c.Parties); err != nil {
		return Outcome{}, reject(c, in.Event, err.Error())
	}
	if c.Provider() == "" {
		return Outcome{}, reject(c, in.Event, "a provider party is required")
	}
	if len(c.Terms) == 0 {
		return Outcome{}, reject(c, in.Event, "terms are empty")
	}
	return Outcome{To: domain.StatusPendingReview, AuditType: domain.AuditSubmittedForReview}, nil
}

func beginReview(c *domain.Contract, in Input) (Outcome, error) {
	return Outcome{To: domain.StatusUnderReview, AuditType: domain.AuditReviewStarted}, nil
}

func approve(c *domain.Contract, in Input) (Outcome, error) {
	if !c.IsRequiredParty(in.Actor) {
		return Outcome{}, reject(c, in.Event, "only required parties can approve")
	}
	if _, done := c.Approvals[in.Actor]; done {
		return Outcome{}, reject(c, in.Event, "party already approved")
	}
	if c.Approvals == nil {
		c.Approvals = map[string]time.Time{}
	}
	c.Approvals[in.Actor] = in.Now
	details := domain.Metadata{"approver": in.Actor}
	if !c.ApprovalsComplete() {
		details["pending_approvals"] = pendingApprovals(c)
		return Outcome{To: domain.StatusUnderReview, AuditType: domain.AuditApprovalRecorded, Details: details}, nil
	}
	return Outcome{To: domain.StatusApprovedByParties, AuditType: domain.AuditApproved, Details: details}, nil
}

func pendingApprovals(c *domain.Contract) []string {
	out := make([]string, 0)
	for _, id := range c.RequiredParties() {
		if _, ok := c.Approvals[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func recordSignature(c *domain.Contract, in Input) (Outcome, error) {
	if _, ok := c.Signatures[in.Signer]; !ok {
		return Outcome{}, reject(c, in.Event, "signature has not been attached")
	}
	details := domain.Metadata{"signer": in.Signer}
	if !c.QuorumComplete() {
		details["pending_signers"] = c.PendingSigners()
		return Outcome{To: domain.StatusApprovedByParties, AuditType: domain.AuditSignatureRecorded, Details: details}, nil
	}
	if in.Now.Before(c.ValidFrom) {
		return Outcome{}, reject(c, in.Event, "completing signature arrived before valid_from")
	}
	if c.Expired(in.Now) {
		return Outcome{}, reject(c, in.Event, "validity window already closed")
	}
	return Outcome{To: domain.StatusActive, AuditType: domain.AuditActivated, Details: details}, nil
}

func suspend(c *domain.Contract, in Input) (Outcome, error) {
	details := domain.Metadata{}
	if r := strings.TrimSpace(in.Reason); r != "" {
		details["reason"] = r
	}
	return Outcome{To: domain.StatusSuspended, AuditType: domain.AuditSuspended, Details: details}, nil
}

func resume(c *domain.Contract, in Input) (Outcome, error) {
	if c.Expired(in.Now) {
		return Outcome{}, reject(c, in.Event, "valid_until has passed")
	}
	if !c.QuorumComplete() {
		return Outcome{}, reject(c, in.Event, "signature quorum is incomplete")
	}
	return Outcome{To: domain.StatusActive, AuditType: domain.AuditResumed}, nil
}

func terminate(c *domain.Contract, in Input) (Outcome, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Outcome{}, reject(c, in.Event, "a termination reason is required")
	}
	return Outcome{To: domain.StatusTerminated, AuditType: domain.AuditTerminated, Details: domain.Metadata{"reason": reason}}, nil
}

func expire(c *domain.Contract, in Input) (Outcome, error) {
	if c.ValidUntil == nil {
		return Outcome{}, reject(c, in.Event, "contract has no valid_until")
	}
	if !c.Expired(in.Now) {
		return Outcome{}, reject(c, in.Event, "valid_until has not passed")
	}
	return Outcome{
		To:        domain.StatusExpired,
		AuditType: domain.AuditExpired,
		Details:   domain.Metadata{"valid_until": c.ValidUntil.UTC().Format(time.RFC3339Nano)},
	}, nil
}

func complete(c *domain.Contract, in Input) (Outcome, error) {
	if !in.Fulfilled {
		return Outcome{}, reject(c, in.Event, "obligations are not marked fulfilled")
	}
	return Outcome{To: domain.StatusCompleted, AuditType: domain.AuditCompleted}, nil
}

func amendTerms(c *domain.Contract, in Input) (Outcome, error) {
	if len(in.Terms) == 0 {
		return Outcome{}, reject(c, in.Event, "terms are empty")
	}
	next := in.Terms.Clone()
	if reflect.DeepEqual(next, c.Terms) {
		return Outcome{}, reject(c, in.Event, "terms are unchanged")
	}
	details := domain.Metadata{
		"signatures_cleared": len(c.Signatures),
		"approvals_cleared":  len(c.Approvals),
	}
	c.Terms = next
	c.Signatures = map[string]domain.Signature{}
	c.Approvals = map[string]time.Time{}
	return Outcome{To: domain.StatusDraft, AuditType: domain.AuditTermsAmended, Details: details}, nil
}
