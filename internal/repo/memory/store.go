// Package memory is an in-process ContractStore used by tests and by
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/repo"
)

// AuditFault lets tests fail audit inserts on demand.
type AuditFault func(event domain.AuditEvent) error

type Option func(*Store)

// WithAuditFault installs f; a non-nil return fails the insert.
func WithAuditFault(f AuditFault) Option {
	return func(s *Store) { s.auditFault = f }
}

type Store struct {
	recorder *audit.Recorder

	mu         sync.RWMutex
	contracts  map[string]domain.Contract
	log        *audit.MemoryLog
	auditFault AuditFault
	down       error
}

var _ repo.ContractStore = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		recorder:  audit.NewRecorder(),
		contracts: make(map[string]domain.Contract),
		log:       audit.NewMemoryLog(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAuditFault replaces the audit fault hook.
func (s *Store) SetAuditFault(f AuditFault) {
	s.mu.Lock()
	s.auditFault = f
	s.mu.Unlock()
}

// SetUnavailable makes every call fail with err until cleared with nil.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	s.down = err
	s.mu.Unlock()
}

// staged buffers the single event of a commit until the contract write is
// known to succeed.
type staged struct {
	log     *audit.MemoryLog
	fault   AuditFault
	pending *domain.AuditEvent
}

func (w *staged) LastEvent(ctx context.Context, contractID string) (domain.AuditEvent, bool, error) {
	return w.log.LastEvent(ctx, contractID)
}

func (w *staged) InsertEvent(_ context.Context, event domain.AuditEvent) error {
	if w.fault != nil {
		if err := w.fault(event); err != nil {
			return err
		}
	}
	ev := event
	w.pending = &ev
	return nil
}

func (s *Store) Create(ctx context.Context, c domain.Contract, entry audit.Entry) (domain.AuditEvent, error) {
	if s == nil {
		return domain.AuditEvent{}, fmt.Errorf("contract store not initialized")
	}
	if err := c.Validate(); err != nil {
		return domain.AuditEvent{}, domain.ErrInvalidContract.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down != nil {
		return domain.AuditEvent{}, repo.Unavailable(s.down)
	}
	if _, exists := s.contracts[c.ID]; exists {
		return domain.AuditEvent{}, fmt.Errorf("contract %s: %w", c.ID, repo.ErrConflict)
	}
	return s.commitLocked(ctx, c, entry)
}

func (s *Store) Commit(ctx context.Context, next domain.Contract, expectedVersion int64, entry audit.Entry) (domain.AuditEvent, error) {
	if s == nil {
		return domain.AuditEvent{}, fmt.Errorf("contract store not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down != nil {
		return domain.AuditEvent{}, repo.Unavailable(s.down)
	}
	stored, ok := s.contracts[next.ID]
	if !ok {
		return domain.AuditEvent{}, repo.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.AuditEvent{}, repo.VersionConflict(stored, expectedVersion, stored.Version)
	}
	if err := domain.EnsureContractSuccessor(stored, next); err != nil {
		return domain.AuditEvent{}, domain.ErrInvalidContract.ForContract(stored.ID, stored.Status).Wrap(err)
	}
	return s.commitLocked(ctx, next, entry)
}

func (s *Store) commitLocked(ctx context.Context, c domain.Contract, entry audit.Entry) (domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditEvent{}, err
	}
	w := &staged{log: s.log, fault: s.auditFault}
	event, err := s.recorder.Append(ctx, w, entry)
	if err != nil {
		return domain.AuditEvent{}, repo.AuditAborted(c.ID, err)
	}
	if err := s.log.InsertEvent(ctx, *w.pending); err != nil {
		return domain.AuditEvent{}, repo.AuditAborted(c.ID, err)
	}
	s.contracts[c.ID] = c.Clone()
	return event, nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Contract, error) {
	if s == nil {
		return domain.Contract{}, fmt.Errorf("contract store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down != nil {
		return domain.Contract{}, repo.Unavailable(s.down)
	}
	c, ok := s.contracts[strings.TrimSpace(id)]
	if !ok {
		return domain.Contract{}, repo.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) List(_ context.Context, filter repo.ContractFilter) ([]domain.Contract, error) {
	if s == nil {
		return nil, fmt.Errorf("contract store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down != nil {
		return nil, repo.Unavailable(s.down)
	}
	out := make([]domain.Contract, 0)
	for _, c := range s.contracts {
		if filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, contractID string, fromSeq, toSeq int64) ([]domain.AuditEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("contract store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down != nil {
		return nil, repo.Unavailable(s.down)
	}
	contractID = strings.TrimSpace(contractID)
	if _, ok := s.contracts[contractID]; !ok {
		return nil, repo.ErrNotFound
	}
	return s.log.ListEvents(ctx, contractID, fromSeq, toSeq)
}
