package repo

import (
	"github.com/animus-labs/animus-contracts/internal/domain"
)

// VersionConflict builds the error returned when a commit loses the race.
func VersionConflict(c domain.Contract, expected, actual int64) error {
	e := domain.ErrConcurrentModification.ForContract(c.ID, c.Status).
		Withf("expected version %d, stored version %d", expected, actual)
	e.ExpectedVersion = expected
	e.ActualVersion = actual
	return e
}

// AuditAborted wraps an audit write failure that aborted a commit.
func AuditAborted(contractID string, err error) error {
	return domain.ErrTransitionAborted.ForContract(contractID, "").
		With("audit event could not be written").
		Wrap(domain.ErrAuditWriteFailed.Wrap(err))
}

// Unavailable wraps a backend failure.
func Unavailable(err error) error {
	return domain.ErrPersistenceUnavailable.Wrap(err)
}
