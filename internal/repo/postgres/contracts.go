package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/repo"
)

const contractColumns = `contract_id, title, status, parties, terms, signatures, approvals, valid_from, valid_until, created_at, created_by, updated_at, version`

const (
	insertContractQuery = `INSERT INTO contracts (
		contract_id,
		title,
		status,
		parties,
		terms,
		signatures,
		approvals,
		valid_from,
		valid_until,
		created_at,
		created_by,
		updated_at,
		version
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	selectContractQuery = `SELECT ` + contractColumns + `
	 FROM contracts
	 WHERE contract_id = $1`

	lockContractQuery = selectContractQuery + `
	 FOR UPDATE`

	updateContractQuery = `UPDATE contracts SET
		title = $3,
		status = $4,
		terms = $5,
		signatures = $6,
		approvals = $7,
		updated_at = $8,
		version = $9
	 WHERE contract_id = $1 AND version = $2`

	listContractsQuery = `SELECT ` + contractColumns + `
	 FROM contracts
	 WHERE ($1 = '' OR parties @> jsonb_build_array(jsonb_build_object('identity', $1::text)))
	   AND ($2 = '' OR status = $2)
	   AND ($3::timestamptz IS NULL OR (valid_until IS NOT NULL AND valid_until < $3))
	 ORDER BY created_at DESC, contract_id ASC
	 LIMIT $4`
)

const defaultListLimit = 100

// ContractStore is the Postgres ContractStore. Mutations run in a single
// transaction that locks the contract row, writes it and appends the audit
// event.
type ContractStore struct {
	db       *sql.DB
	recorder *audit.Recorder
}

var _ repo.ContractStore = (*ContractStore)(nil)

func NewContractStore(db *sql.DB) *ContractStore {
	if db == nil {
		return nil
	}
	return &ContractStore{db: db, recorder: audit.NewRecorder()}
}

func (s *ContractStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("contract store not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *ContractStore) Create(ctx context.Context, c domain.Contract, entry audit.Entry) (domain.AuditEvent, error) {
	if s == nil || s.db == nil {
		return domain.AuditEvent{}, fmt.Errorf("contract store not initialized")
	}
	if err := c.Validate(); err != nil {
		return domain.AuditEvent{}, domain.ErrInvalidContract.Wrap(err)
	}
	args, err := contractArgs(c)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AuditEvent{}, repo.Unavailable(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertContractQuery, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.AuditEvent{}, fmt.Errorf("contract %s: %w", c.ID, repo.ErrConflict)
		}
		return domain.AuditEvent{}, repo.Unavailable(fmt.Errorf("insert contract: %w", err))
	}
	return s.appendAndCommit(ctx, tx, c.ID, entry)
}

func (s *ContractStore) Commit(ctx context.Context, next domain.Contract, expectedVersion int64, entry audit.Entry) (domain.AuditEvent, error) {
	if s == nil || s.db == nil {
		return domain.AuditEvent{}, fmt.Errorf("contract store not initialized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AuditEvent{}, repo.Unavailable(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := scanContract(tx.QueryRowContext(ctx, lockContractQuery, next.ID))
	if err != nil {
		return domain.AuditEvent{}, handleNotFound(fmt.Errorf("lock contract: %w", err))
	}
	if stored.Version != expectedVersion {
		return domain.AuditEvent{}, repo.VersionConflict(stored, expectedVersion, stored.Version)
	}
	if err := domain.EnsureContractSuccessor(stored, next); err != nil {
		return domain.AuditEvent{}, domain.ErrInvalidContract.ForContract(stored.ID, stored.Status).Wrap(err)
	}

	terms, err := encodeMetadata(next.Terms)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("encode terms: %w", err)
	}
	sigs, err := encodeSignatures(next.Signatures)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("encode signatures: %w", err)
	}
	approvals, err := encodeApprovals(next.Approvals)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("encode approvals: %w", err)
	}
	res, err := tx.ExecContext(ctx, updateContractQuery,
		next.ID,
		expectedVersion,
		strings.TrimSpace(next.Title),
		string(next.Status),
		terms,
		sigs,
		approvals,
		next.UpdatedAt.UTC(),
		next.Version,
	)
	if err != nil {
		return domain.AuditEvent{}, repo.Unavailable(fmt.Errorf("update contract: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return domain.AuditEvent{}, repo.VersionConflict(stored, expectedVersion, stored.Version)
	}
	return s.appendAndCommit(ctx, tx, next.ID, entry)
}

func (s *ContractStore) appendAndCommit(ctx context.Context, tx *sql.Tx, contractID string, entry audit.Entry) (domain.AuditEvent, error) {
	event, err := s.recorder.Append(ctx, eventWriter{q: tx}, entry)
	if err != nil {
		return domain.AuditEvent{}, repo.AuditAborted(contractID, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.AuditEvent{}, repo.Unavailable(fmt.Errorf("commit: %w", err))
	}
	return event, nil
}

func (s *ContractStore) Get(ctx context.Context, id string) (domain.Contract, error) {
	if s == nil || s.db == nil {
		return domain.Contract{}, fmt.Errorf("contract store not initialized")
	}
	c, err := scanContract(s.db.QueryRowContext(ctx, selectContractQuery, strings.TrimSpace(id)))
	if err != nil {
		return domain.Contract{}, handleNotFound(err)
	}
	return c, nil
}

func (s *ContractStore) List(ctx context.Context, filter repo.ContractFilter) ([]domain.Contract, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("contract store not initialized")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, listContractsQuery,
		strings.TrimSpace(filter.Party),
		string(filter.Status),
		nullTime(filter.ExpiresBefore),
		limit,
	)
	if err != nil {
		return nil, repo.Unavailable(fmt.Errorf("list contracts: %w", err))
	}
	defer rows.Close()

	out := make([]domain.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, repo.Unavailable(fmt.Errorf("iterate contracts: %w", err))
	}
	return out, nil
}

func (s *ContractStore) ListEvents(ctx context.Context, contractID string, fromSeq, toSeq int64) ([]domain.AuditEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("contract store not initialized")
	}
	contractID = strings.TrimSpace(contractID)
	var exists bool
	if err := s.db.QueryRowContext(ctx, contractExistsQuery, contractID).Scan(&exists); err != nil {
		return nil, repo.Unavailable(err)
	}
	if !exists {
		return nil, repo.ErrNotFound
	}
	return eventWriter{q: s.db}.ListEvents(ctx, contractID, fromSeq, toSeq)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (domain.Contract, error) {
	var (
		c          domain.Contract
		status     string
		parties    []byte
		terms      []byte
		sigs       []byte
		approvals  []byte
		validUntil sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&status,
		&parties,
		&terms,
		&sigs,
		&approvals,
		&c.ValidFrom,
		&validUntil,
		&c.CreatedAt,
		&c.CreatedBy,
		&c.UpdatedAt,
		&c.Version,
	); err != nil {
		return domain.Contract{}, err
	}
	c.Status = domain.ContractStatus(status)
	if err := json.Unmarshal(parties, &c.Parties); err != nil {
		return domain.Contract{}, fmt.Errorf("decode parties: %w", err)
	}
	var err error
	if c.Terms, err = decodeMetadata(terms); err != nil {
		return domain.Contract{}, fmt.Errorf("decode terms: %w", err)
	}
	if c.Signatures, err = decodeSignatures(sigs); err != nil {
		return domain.Contract{}, fmt.Errorf("decode signatures: %w", err)
	}
	if c.Approvals, err = decodeApprovals(approvals); err != nil {
		return domain.Contract{}, fmt.Errorf("decode approvals: %w", err)
	}
	c.ValidFrom = c.ValidFrom.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if validUntil.Valid {
		t := validUntil.Time.UTC()
		c.ValidUntil = &t
	}
	return c, nil
}

func contractArgs(c domain.Contract) ([]any, error) {
	parties, err := json.Marshal(c.Parties)
	if err != nil {
		return nil, fmt.Errorf("encode parties: %w", err)
	}
	terms, err := encodeMetadata(c.Terms)
	if err != nil {
		return nil, fmt.Errorf("encode terms: %w", err)
	}
	sigs, err := encodeSignatures(c.Signatures)
	if err != nil {
		return nil, fmt.Errorf("encode signatures: %w", err)
	}
	approvals, err := encodeApprovals(c.Approvals)
	if err != nil {
		return nil, fmt.Errorf("encode approvals: %w", err)
	}
	return []any{
		c.ID,
		strings.TrimSpace(c.Title),
		string(c.Status),
		parties,
		terms,
		sigs,
		approvals,
		c.ValidFrom.UTC(),
		nullTime(c.ValidUntil),
		c.CreatedAt.UTC(),
		c.CreatedBy,
		c.UpdatedAt.UTC(),
		c.Version,
	}, nil
}
