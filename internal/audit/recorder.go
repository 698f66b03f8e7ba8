// Package audit is the sole writer of the per-contract lifecycle event log.
//
// Each event carries the integrity hash of its own content and the hash of
// its predecessor, so any edit, reorder or deletion inside a contract's trail
// is detectable by VerifyChain.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
)

var ErrChainBroken = errors.New("audit chain broken")

// Entry is the caller-supplied part of an audit event. Sequence and hashes
// are assigned by the Recorder.
type Entry struct {
	ContractID string
	Type       domain.AuditEventType
	Actor      string
	From       domain.ContractStatus
	To         domain.ContractStatus
	OccurredAt time.Time
	Details    domain.Metadata
}

// Writer is the commit-scoped view of an event log.
type Writer interface {
	LastEvent(ctx context.Context, contractID string) (domain.AuditEvent, bool, error)
	InsertEvent(ctx context.Context, event domain.AuditEvent) error
}

// Reader returns committed events ordered by sequence. A zero bound is open.
type Reader interface {
	ListEvents(ctx context.Context, contractID string, fromSeq, toSeq int64) ([]domain.AuditEvent, error)
}

// Range bounds a trail read by sequence, inclusive. Zero values are open.
type Range struct {
	From int64
	To   int64
}

func (r Range) Validate() error {
	if r.From < 0 || r.To < 0 {
		return errors.New("range bounds must be >= 0")
	}
	if r.To != 0 && r.From > r.To {
		return errors.New("range from must be <= to")
	}
	return nil
}

// Recorder appends and reads audit events.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append assigns the next sequence for the contract, links it to the previous
// event and inserts it through w.
func (r *Recorder) Append(ctx context.Context, w Writer, e Entry) (domain.AuditEvent, error) {
	if w == nil {
		return domain.AuditEvent{}, errors.New("audit writer is required")
	}
	last, ok, err := w.LastEvent(ctx, e.ContractID)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("read last audit event: %w", err)
	}
	event := domain.AuditEvent{
		ContractID: strings.TrimSpace(e.ContractID),
		Sequence:   1,
		Type:       e.Type,
		Actor:      strings.TrimSpace(e.Actor),
		FromStatus: e.From,
		ToStatus:   e.To,
		OccurredAt: e.OccurredAt.UTC().Truncate(time.Microsecond),
		Details:    e.Details.Clone(),
	}
	if ok {
		event.Sequence = last.Sequence + 1
		event.PrevSHA256 = last.IntegritySHA256
		if event.OccurredAt.Before(last.OccurredAt) {
			event.OccurredAt = last.OccurredAt
		}
	}
	integrity, err := ComputeIntegritySHA256(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.IntegritySHA256 = integrity
	if err := event.Validate(); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("audit event: %w", err)
	}
	if err := w.InsertEvent(ctx, event); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("insert audit event: %w", err)
	}
	return event, nil
}

// List returns the events of one contract within rng. The result is a fresh
// slice the caller may iterate any number of times. A sequence gap means the
// log was corrupted underneath us and panics.
func (r *Recorder) List(ctx context.Context, rd Reader, contractID string, rng Range) ([]domain.AuditEvent, error) {
	if rd == nil {
		return nil, errors.New("audit reader is required")
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	events, err := rd.ListEvents(ctx, contractID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	start := rng.From
	if start < 1 {
		start = 1
	}
	for i, ev := range events {
		if want := start + int64(i); ev.Sequence != want {
			panic(fmt.Sprintf("audit log for contract %s has a gap: want sequence %d, got %d", contractID, want, ev.Sequence))
		}
	}
	return events, nil
}

// VerifyChain recomputes every hash of a complete trail starting at sequence 1.
func VerifyChain(events []domain.AuditEvent) error {
	prev := ""
	for i, ev := range events {
		if ev.Sequence != int64(i)+1 {
			return fmt.Errorf("%w: event %d has sequence %d", ErrChainBroken, i+1, ev.Sequence)
		}
		if ev.PrevSHA256 != prev {
			return fmt.Errorf("%w: sequence %d does not link to its predecessor", ErrChainBroken, ev.Sequence)
		}
		sum, err := ComputeIntegritySHA256(ev)
		if err != nil {
			return err
		}
		if sum != ev.IntegritySHA256 {
			return fmt.Errorf("%w: sequence %d integrity mismatch", ErrChainBroken, ev.Sequence)
		}
		prev = ev.IntegritySHA256
	}
	return nil
}

// ComputeIntegritySHA256 hashes every field of the event except its own
// integrity hash.
func ComputeIntegritySHA256(event domain.AuditEvent) (string, error) {
	type integrityInput struct {
		ContractID string          `json:"contract_id"`
		Sequence   int64           `json:"sequence"`
		Type       string          `json:"type"`
		Actor      string          `json:"actor"`
		FromStatus string          `json:"from_status,omitempty"`
		ToStatus   string          `json:"to_status"`
		OccurredAt string          `json:"occurred_at"`
		Details    domain.Metadata `json:"details"`
		PrevSHA256 string          `json:"prev_sha256,omitempty"`
	}
	details := event.Details
	if details == nil {
		details = domain.Metadata{}
	}
	sum, err := canonical.SumHex(integrityInput{
		ContractID: event.ContractID,
		Sequence:   event.Sequence,
		Type:       string(event.Type),
		Actor:      event.Actor,
		FromStatus: string(event.FromStatus),
		ToStatus:   string(event.ToStatus),
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339Nano),
		Details:    details,
		PrevSHA256: event.PrevSHA256,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	return sum, nil
}
