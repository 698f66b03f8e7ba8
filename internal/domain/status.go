package domain

import "strings"

// ContractStatus is the lifecycle status of a contract. Exactly one holds at a time.
type ContractStatus string

const (
	StatusDraft             ContractStatus = "draft"
	StatusPendingReview     ContractStatus = "pending_review"
	StatusUnderReview       ContractStatus = "under_review"
	StatusApprovedByParties ContractStatus = "approved_by_parties"
	StatusActive            ContractStatus = "active"
	StatusSuspended         ContractStatus = "suspended"
	StatusCompleted         ContractStatus = "completed"
	StatusTerminated        ContractStatus = "terminated"
	StatusExpired           ContractStatus = "expired"
)

var allStatuses = []ContractStatus{
	StatusDraft,
	StatusPendingReview,
	StatusUnderReview,
	StatusApprovedByParties,
	StatusActive,
	StatusSuspended,
	StatusCompleted,
	StatusTerminated,
	StatusExpired,
}

// Statuses lists every status in lifecycle order.
func Statuses() []ContractStatus {
	return append([]ContractStatus(nil), allStatuses...)
}

func (s ContractStatus) Valid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outbound transitions.
func (s ContractStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusExpired:
		return true
	default:
		return false
	}
}

// ParseStatus maps free-form values onto a canonical status.
func ParseStatus(value string) (ContractStatus, bool) {
	s := ContractStatus(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// Event names a lifecycle transition request.
type Event string

const (
	EventSubmitForReview Event = "submit_for_review"
	EventBeginReview     Event = "begin_review"
	EventApprove         Event = "approve"
	EventRecordSignature Event = "record_signature"
	EventSuspend         Event = "suspend"
	EventResume          Event = "resume"
	EventTerminate       Event = "terminate"
	EventExpire          Event = "expire"
	EventComplete        Event = "complete"
	EventAmendTerms      Event = "amend_terms"
)

// ParseEvent maps free-form values onto a known event.
func ParseEvent(value string) (Event, bool) {
	ev := Event(strings.ToLower(strings.TrimSpace(value)))
	switch ev {
	case EventSubmitForReview, EventBeginReview, EventApprove, EventRecordSignature,
		EventSuspend, EventResume, EventTerminate, EventExpire, EventComplete, EventAmendTerms:
		return ev, true
	default:
		return "", false
	}
}
