package repo

import (
	"context"
	"errors"
	"time"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type ContractFilter struct {
	Party         string
	Status        domain.ContractStatus
	ExpiresBefore *time.Time
	Limit         int
}

// Matches applies the filter to c in memory.
func (f ContractFilter) Matches(c domain.Contract) bool {
	if f.Party != "" {
		if _, ok := c.Party(f.Party); !ok {
			return false
		}
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.ExpiresBefore != nil {
		if c.ValidUntil == nil || !c.ValidUntil.Before(*f.ExpiresBefore) {
			return false
		}
	}
	return true
}

// ContractStore persists contracts together with their audit trail. Create
// and Commit write the contract row and its audit event in one unit: either
// both become visible or neither does.
//
// Commit fails with domain.ErrConcurrentModification when the stored version
// differs from expectedVersion, and with domain.ErrTransitionAborted wrapping
// domain.ErrAuditWriteFailed when the audit event cannot be written.
type ContractStore interface {
	audit.Reader

	Create(ctx context.Context, contract domain.Contract, entry audit.Entry) (domain.AuditEvent, error)
	Get(ctx context.Context, id string) (domain.Contract, error)
	List(ctx context.Context, filter ContractFilter) ([]domain.Contract, error)
	Commit(ctx context.Context, next domain.Contract, expectedVersion int64, entry audit.Entry) (domain.AuditEvent, error)
}

// Pinger is implemented by stores with a remote backend.
type Pinger interface {
	Ping(ctx context.Context) error
}
