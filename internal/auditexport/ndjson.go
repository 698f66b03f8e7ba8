// Package auditexport serializes contract audit trails and archives the
// trails of contracts that reached a terminal status.
package auditexport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

// Record is the wire form of one audit event.
type Record struct {
	ContractID      string          `json:"contract_id"`
	Sequence        int64           `json:"sequence"`
	Type            string          `json:"type"`
	Actor           string          `json:"actor"`
	FromStatus      string          `json:"from_status,omitempty"`
	ToStatus        string          `json:"to_status"`
	OccurredAt      time.Time       `json:"occurred_at"`
	Details         domain.Metadata `json:"details,omitempty"`
	PrevSHA256      string          `json:"prev_sha256,omitempty"`
	IntegritySHA256 string          `json:"integrity_sha256"`
}

func FromEvent(ev domain.AuditEvent) Record {
	return Record{
		ContractID:      ev.ContractID,
		Sequence:        ev.Sequence,
		Type:            string(ev.Type),
		Actor:           ev.Actor,
		FromStatus:      string(ev.FromStatus),
		ToStatus:        string(ev.ToStatus),
		OccurredAt:      ev.OccurredAt.UTC(),
		Details:         ev.Details,
		PrevSHA256:      ev.PrevSHA256,
		IntegritySHA256: ev.IntegritySHA256,
	}
}

func (r Record) Event() domain.AuditEvent {
	return domain.AuditEvent{
		ContractID:      r.ContractID,
		Sequence:        r.Sequence,
		Type:            domain.AuditEventType(r.Type),
		Actor:           r.Actor,
		FromStatus:      domain.ContractStatus(r.FromStatus),
		ToStatus:        domain.ContractStatus(r.ToStatus),
		OccurredAt:      r.OccurredAt,
		Details:         r.Details,
		PrevSHA256:      r.PrevSHA256,
		IntegritySHA256: r.IntegritySHA256,
	}
}

// WriteNDJSON writes one JSON object per line, in trail order.
func WriteNDJSON(w io.Writer, events []domain.AuditEvent) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, ev := range events {
		if err := enc.Encode(FromEvent(ev)); err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Sequence, err)
		}
	}
	return bw.Flush()
}

// ReadNDJSON decodes a trail written by WriteNDJSON. Numbers inside details
// decode as json.Number so integrity hashes recompute unchanged.
func ReadNDJSON(r io.Reader) ([]domain.AuditEvent, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []domain.AuditEvent
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode line %d: %w", len(out)+1, err)
		}
		out = append(out, rec.Event())
	}
}
