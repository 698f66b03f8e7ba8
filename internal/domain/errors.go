package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a stable, machine-readable error class.
type Kind string

const (
	KindInvalidTransition      Kind = "invalid_transition"
	KindUnknownSigner          Kind = "unknown_signer"
	KindAlreadySigned          Kind = "already_signed"
	KindStaleDigest            Kind = "stale_digest"
	KindInvalidSignature       Kind = "invalid_signature"
	KindConcurrentModification Kind = "concurrent_modification"
	KindBusy                   Kind = "busy"
	KindAuditWriteFailed       Kind = "audit_write_failed"
	KindTransitionAborted      Kind = "transition_aborted"
	KindPersistenceUnavailable Kind = "persistence_unavailable"
	KindNotFound               Kind = "not_found"
	KindInvalidContract        Kind = "invalid_contract"
	KindUnauthorized           Kind = "unauthorized"
	KindIdentityUnavailable    Kind = "identity_unavailable"
)

// Error carries the kind plus enough state for callers to build an
// actionable message without re-reading the contract.
type Error struct {
	Kind            Kind
	Message         string
	ContractID      string
	Status          ContractStatus
	Event           Event
	Signer          string
	ExpectedVersion int64
	ActualVersion   int64
	Err             error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ContractID != "" {
		fmt.Fprintf(&b, " (contract=%s", e.ContractID)
		if e.Status != "" {
			fmt.Fprintf(&b, " status=%s", e.Status)
		}
		if e.Event != "" {
			fmt.Fprintf(&b, " event=%s", e.Event)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches on Kind so callers can use errors.Is(err, domain.ErrStaleDigest).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e carrying msg.
func (e *Error) With(msg string) *Error {
	out := *e
	out.Message = msg
	return &out
}

// Withf returns a copy of e carrying a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	return e.With(fmt.Sprintf(format, args...))
}

// ForContract attaches the contract id and status at failure time.
func (e *Error) ForContract(id string, status ContractStatus) *Error {
	out := *e
	out.ContractID = id
	out.Status = status
	return &out
}

// OnEvent attaches the attempted event.
func (e *Error) OnEvent(ev Event) *Error {
	out := *e
	out.Event = ev
	return &out
}

// Wrap attaches a cause.
func (e *Error) Wrap(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

var (
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrUnknownSigner          = &Error{Kind: KindUnknownSigner}
	ErrAlreadySigned          = &Error{Kind: KindAlreadySigned}
	ErrStaleDigest            = &Error{Kind: KindStaleDigest}
	ErrInvalidSignature       = &Error{Kind: KindInvalidSignature}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrBusy                   = &Error{Kind: KindBusy}
	ErrAuditWriteFailed       = &Error{Kind: KindAuditWriteFailed}
	ErrTransitionAborted      = &Error{Kind: KindTransitionAborted}
	ErrPersistenceUnavailable = &Error{Kind: KindPersistenceUnavailable}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidContract        = &Error{Kind: KindInvalidContract}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrIdentityUnavailable    = &Error{Kind: KindIdentityUnavailable}
)

// KindOf extracts the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
