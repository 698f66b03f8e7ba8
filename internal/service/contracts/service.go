package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/authz"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/lock"
	"github.com/animus-labs/animus-contracts/internal/repo"
	"github.com/animus-labs/animus-contracts/internal/signatures"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Metrics receives lifecycle observations.
type Metrics interface {
	TransitionCommitted(event domain.Event, from, to domain.ContractStatus)
	TransitionRejected(event domain.Event, kind domain.Kind)
	LockWaited(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) TransitionCommitted(domain.Event, domain.ContractStatus, domain.ContractStatus) {}
func (noopMetrics) TransitionRejected(domain.Event, domain.Kind)                                   {}
func (noopMetrics) LockWaited(time.Duration)                                                       {}

// Exporter receives the full trail of a contract once it reaches a terminal
// status. Export failures are logged and never undo the commit.
type Exporter interface {
	Export(ctx context.Context, contract domain.Contract, events []domain.AuditEvent) error
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) { s.lockTimeout = d }
}

// WithIDGenerator overrides contract id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newID = f
		}
	}
}

// WithVerifier overrides signature verification.
func WithVerifier(v signatures.VerifyFunc) Option {
	return func(s *Service) { s.verify = v }
}

type Service struct {
	store     repo.ContractStore
	resolver  identity.Resolver
	checker   authz.Checker
	recorder  *audit.Recorder
	collector *signatures.Collector
	locks     *lock.Manager

	clock       Clock
	metrics     Metrics
	exporter    Exporter
	logger      *slog.Logger
	lockTimeout time.Duration
	newID       func() string
	verify      signatures.VerifyFunc
}

func New(store repo.ContractStore, resolver identity.Resolver, checker authz.Checker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("contract store is required")
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if checker == nil {
		return nil, errors.New("authorization checker is required")
	}
	s := &Service{
		store:       store,
		resolver:    resolver,
		checker:     checker,
		recorder:    audit.NewRecorder(),
		clock:       systemClock{},
		metrics:     noopMetrics{},
		logger:      slog.Default(),
		lockTimeout: 5 * time.Second,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.collector = signatures.New(s.verify)
	s.locks = lock.NewManager(s.lockTimeout)
	return s, nil
}

// now is truncated to the precision every store can hold.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// Op mutates the working copy of a contract and describes the audit event
// for the mutation. Returning an error discards the working copy.
type Op func(c *domain.Contract, now time.Time) (audit.Entry, error)

// WithContract runs op inside the exclusive section for id and commits the
// result atomically with its audit event.
func (s *Service) WithContract(ctx context.Context, id string, op Op) (domain.Contract, domain.AuditEvent, error) {
	id = normalizeID(id)
	waitStart := time.Now()
	release, err := s.locks.Acquire(ctx, id)
	s.metrics.LockWaited(time.Since(waitStart))
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			return domain.Contract{}, domain.AuditEvent{}, domain.ErrBusy.ForContract(id, "").Wrap(err)
		}
		return domain.Contract{}, domain.AuditEvent{}, err
	}
	defer release()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Contract{}, domain.AuditEvent{}, s.storeErr(id, err)
	}
	work := current.Clone()
	now := s.now()
	entry, err := op(&work, now)
	if err != nil {
		return domain.Contract{}, domain.AuditEvent{}, err
	}

	work.Version = current.Version + 1
	work.UpdatedAt = now
	if work.UpdatedAt.Before(current.UpdatedAt) {
		work.UpdatedAt = current.UpdatedAt
	}
	entry.ContractID = current.ID
	entry.From = current.Status
	entry.To = work.Status
	entry.OccurredAt = work.UpdatedAt

	event, err := s.store.Commit(ctx, work, current.Version, entry)
	if err != nil {
		return domain.Contract{}, domain.AuditEvent{}, s.storeErr(id, err)
	}
	return work, event, nil
}

// normalizeID is the key every lock and store lookup uses, so ids that
// differ only in surrounding whitespace share one exclusive section.
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

func (s *Service) storeErr(id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ErrNotFound.ForContract(id, "").With("contract not found")
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrPersistenceUnavailable.ForContract(id, "").Wrap(err)
}

func (s *Service) authorize(ctx context.Context, actor string, capability domain.Capability, c domain.Contract) (authz.Decision, error) {
	decision, err := s.checker.Check(ctx, actor, capability, c)
	if err != nil {
		return decision, fmt.Errorf("authorize %s: %w", capability, err)
	}
	if !decision.Allowed {
		return decision, domain.ErrUnauthorized.ForContract(c.ID, c.Status).
			Withf("%q lacks capability %s", actor, capability)
	}
	return decision, nil
}

// committed logs, counts and exports a successful mutation.
func (s *Service) committed(ctx context.Context, ev domain.Event, c domain.Contract, event domain.AuditEvent) {
	s.metrics.TransitionCommitted(ev, event.FromStatus, event.ToStatus)
	s.logger.Info("contract transition committed",
		"contract_id", c.ID,
		"event", ev,
		"from", event.FromStatus,
		"to", event.ToStatus,
		"version", c.Version,
		"sequence", event.Sequence,
		"actor", event.Actor,
	)
	if s.exporter == nil || !c.Status.Terminal() {
		return
	}
	events, err := s.recorder.List(ctx, s.store, c.ID, audit.Range{})
	if err == nil {
		err = s.exporter.Export(ctx, c, events)
	}
	if err != nil {
		s.logger.Warn("audit export failed", "contract_id", c.ID, "status", c.Status, "error", err)
	}
}

func (s *Service) rejected(id string, ev domain.Event, err error) {
	kind := domain.KindOf(err)
	s.metrics.TransitionRejected(ev, kind)
	s.logger.Warn("contract transition rejected",
		"contract_id", id,
		"event", ev,
		"kind", kind,
		"error", err,
	)
}
