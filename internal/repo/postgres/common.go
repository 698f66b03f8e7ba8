package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Migrate applies the contract schema. It is idempotent.
func Migrate(ctx context.Context, db DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate contracts schema: %w", err)
	}
	return nil
}

func encodeMetadata(meta domain.Metadata) ([]byte, error) {
	if meta == nil {
		meta = domain.Metadata{}
	}
	return json.Marshal(meta)
}

func decodeMetadata(raw []byte) (domain.Metadata, error) {
	if len(raw) == 0 {
		return domain.Metadata{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return domain.Metadata(out), nil
}

type signatureRecord struct {
	Signer    string    `json:"signer"`
	Digest    string    `json:"digest"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signed_at"`
}

func encodeSignatures(sigs map[string]domain.Signature) ([]byte, error) {
	out := make(map[string]signatureRecord, len(sigs))
	for id, s := range sigs {
		out[id] = signatureRecord{
			Signer:    s.Signer,
			Digest:    base64.StdEncoding.EncodeToString(s.Digest),
			Signature: base64.StdEncoding.EncodeToString(s.Signature),
			SignedAt:  s.SignedAt.UTC(),
		}
	}
	return json.Marshal(out)
}

func decodeSignatures(raw []byte) (map[string]domain.Signature, error) {
	out := map[string]domain.Signature{}
	if len(raw) == 0 {
		return out, nil
	}
	var recs map[string]signatureRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	for id, r := range recs {
		digest, err := base64.StdEncoding.DecodeString(r.Digest)
		if err != nil {
			return nil, fmt.Errorf("signature %s digest: %w", id, err)
		}
		sig, err := base64.StdEncoding.DecodeString(r.Signature)
		if err != nil {
			return nil, fmt.Errorf("signature %s value: %w", id, err)
		}
		out[id] = domain.Signature{Signer: r.Signer, Digest: digest, Signature: sig, SignedAt: r.SignedAt.UTC()}
	}
	return out, nil
}

func encodeApprovals(approvals map[string]time.Time) ([]byte, error) {
	if approvals == nil {
		approvals = map[string]time.Time{}
	}
	return json.Marshal(approvals)
}

func decodeApprovals(raw []byte) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	for k, v := range out {
		out[k] = v.UTC()
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// handleNotFound maps a missing row to repo.ErrNotFound and any other read
// failure to an unavailable backend.
func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return repo.Unavailable(err)
}
