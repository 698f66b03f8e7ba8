package contracts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/repo"
)

const expiryBatch = 100

// ExpireDue expires active contracts whose validity window has closed and
// returns how many were expired. Contracts that changed status concurrently
// are skipped.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.List(ctx, repo.ContractFilter{
		Status:        domain.StatusActive,
		ExpiresBefore: &now,
		Limit:         expiryBatch,
	})
	if err != nil {
		return 0, s.storeErr("", err)
	}
	expired := 0
	for _, c := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.Transition(ctx, c.ID, domain.EventExpire, domain.SystemActor, Payload{})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrBusy):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}

// Sweeper runs ExpireDue on a fixed interval.
type Sweeper struct {
	logger   *slog.Logger
	svc      *Service
	interval time.Duration
}

func NewSweeper(logger *slog.Logger, svc *Service, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{logger: logger, svc: svc, interval: interval}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || s.svc == nil {
		return
	}
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.svc.ExpireDue(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("expiry sweep failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expiry sweep", "expired", n)
	}
}
