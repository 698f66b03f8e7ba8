package domain

import (
	"errors"
	"strings"
	"time"
)

// SystemActor is the actor recorded for time-triggered transitions.
const SystemActor = "system"

// AuditEventType classifies one lifecycle audit record.
type AuditEventType string

const (
	AuditContractCreated    AuditEventType = "contract.created"
	AuditSubmittedForReview AuditEventType = "contract.submitted_for_review"
	AuditReviewStarted      AuditEventType = "contract.review_started"
	AuditApprovalRecorded   AuditEventType = "contract.approval_recorded"
	AuditApproved           AuditEventType = "contract.approved"
	AuditSignatureRecorded  AuditEventType = "contract.signature_recorded"
	AuditActivated          AuditEventType = "contract.activated"
	AuditSuspended          AuditEventType = "contract.suspended"
	AuditResumed            AuditEventType = "contract.resumed"
	AuditTerminated         AuditEventType = "contract.terminated"
	AuditExpired            AuditEventType = "contract.expired"
	AuditCompleted          AuditEventType = "contract.completed"
	AuditTermsAmended       AuditEventType = "contract.terms_amended"
)

// AuditEvent is an immutable record of one lifecycle transition. Sequence is
// strictly increasing per contract, starting at 1, without gaps.
type AuditEvent struct {
	ContractID      string
	Sequence        int64
	Type            AuditEventType
	Actor           string
	FromStatus      ContractStatus
	ToStatus        ContractStatus
	OccurredAt      time.Time
	Details         Metadata
	PrevSHA256      string
	IntegritySHA256 string
}

func (e AuditEvent) Validate() error {
	if strings.TrimSpace(e.ContractID) == "" {
		return errors.New("contract_id is required")
	}
	if e.Sequence < 1 {
		return errors.New("sequence must be >= 1")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return errors.New("type is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("actor is required")
	}
	if !e.ToStatus.Valid() {
		return errors.New("to_status is invalid")
	}
	if e.FromStatus != "" && !e.FromStatus.Valid() {
		return errors.New("from_status is invalid")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	if strings.TrimSpace(e.IntegritySHA256) == "" {
		return errors.New("integrity sha256 is required")
	}
	return nil
}
