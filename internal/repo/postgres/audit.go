package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/domain"
)

const auditColumns = `contract_id, sequence, event_type, actor, from_status, to_status, occurred_at, details, prev_sha256, integrity_sha256`

const (
	insertAuditEventQuery = `INSERT INTO contract_audit_events (` + auditColumns + `)
	 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	lastAuditEventQuery = `SELECT ` + auditColumns + `
	 FROM contract_audit_events
	 WHERE contract_id = $1
	 ORDER BY sequence DESC
	 LIMIT 1`

	listAuditEventsQuery = `SELECT ` + auditColumns + `
	 FROM contract_audit_events
	 WHERE contract_id = $1 AND sequence >= $2 AND sequence <= $3
	 ORDER BY sequence ASC`

	contractExistsQuery = `SELECT EXISTS (SELECT 1 FROM contracts WHERE contract_id = $1)`
)

// eventWriter reads and appends audit events through q, which is the
// surrounding transaction during commits.
type eventWriter struct {
	q DB
}

var (
	_ audit.Writer = eventWriter{}
	_ audit.Reader = eventWriter{}
)

func (w eventWriter) LastEvent(ctx context.Context, contractID string) (domain.AuditEvent, bool, error) {
	ev, err := scanAuditEvent(w.q.QueryRowContext(ctx, lastAuditEventQuery, contractID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AuditEvent{}, false, nil
		}
		return domain.AuditEvent{}, false, err
	}
	return ev, true, nil
}

func (w eventWriter) InsertEvent(ctx context.Context, ev domain.AuditEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	details, err := encodeMetadata(ev.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = w.q.ExecContext(ctx, insertAuditEventQuery,
		ev.ContractID,
		ev.Sequence,
		string(ev.Type),
		ev.Actor,
		string(ev.FromStatus),
		string(ev.ToStatus),
		ev.OccurredAt.UTC(),
		details,
		ev.PrevSHA256,
		ev.IntegritySHA256,
	)
	return err
}

func (w eventWriter) ListEvents(ctx context.Context, contractID string, fromSeq, toSeq int64) ([]domain.AuditEvent, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}
	if toSeq <= 0 {
		toSeq = math.MaxInt64
	}
	rows, err := w.q.QueryContext(ctx, listAuditEventsQuery, contractID, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	out := make([]domain.AuditEvent, 0)
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanAuditEvent(row scanner) (domain.AuditEvent, error) {
	var (
		ev        domain.AuditEvent
		eventType string
		from      string
		to        string
		details   []byte
	)
	if err := row.Scan(
		&ev.ContractID,
		&ev.Sequence,
		&eventType,
		&ev.Actor,
		&from,
		&to,
		&ev.OccurredAt,
		&details,
		&ev.PrevSHA256,
		&ev.IntegritySHA256,
	); err != nil {
		return domain.AuditEvent{}, err
	}
	ev.Type = domain.AuditEventType(eventType)
	ev.FromStatus = domain.ContractStatus(from)
	ev.ToStatus = domain.ContractStatus(to)
	ev.OccurredAt = ev.OccurredAt.UTC()
	var err error
	if ev.Details, err = decodeMetadata(details); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode details: %w", err)
	}
	return ev, nil
}
